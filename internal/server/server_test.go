package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/cache"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/config"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/journey"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/platform"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/sos"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/store"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/threat"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

type serverFixture struct {
	handler http.Handler
	machine *sos.Machine
	monitor *journey.Monitor
	history *store.Memory
	cache   *cache.Cache
	device  *platform.Device
}

// newServer wires a full core with instant activation and no outbound
// gateways, and starts the machine's bus consumer.
func newServer(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		AllowedOrigins: []string{"https://app.example.com"},
	}
	bus := trigger.NewBus(16)
	history := store.NewMemory()
	device := platform.NewDevice()
	contacts := platform.NewFileContacts("/nonexistent/contacts.json")

	machine := sos.New(sos.Config{CountdownSeconds: 0, DrainTimeout: time.Second},
		bus, contacts, device, nil, history, nil)
	engine := threat.New(bus)
	monitor := journey.New(journey.Config{CheckInInterval: time.Minute, CheckInTimeout: time.Minute},
		bus, nil, history, nil)
	adapters := &trigger.Adapters{
		Button:   trigger.NewButtonSequenceMatcher(bus, []string{"power", "power", "power"}, 3*time.Second, time.Second),
		Shake:    trigger.NewShakeDetector(bus, 18.0, 4, 2*time.Second),
		Phrase:   trigger.NewPhraseMatcher(bus, func() { machine.Cancel() }),
		Wearable: trigger.NewWearableSignalReceiver(bus),
		Manual:   trigger.NewManualTrigger(bus),
	}
	threatCache := cache.New()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go machine.Run(ctx)

	srv := New(cfg, machine, engine, monitor, adapters, device, history, threatCache, nil)
	return &serverFixture{
		handler: srv.Router(),
		machine: machine,
		monitor: monitor,
		history: history,
		cache:   threatCache,
		device:  device,
	}
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func waitForState(t *testing.T, m *sos.Machine, want model.SessionState) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		time.Second, 5*time.Millisecond, "expected state %s", want)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "idle", resp["state"])
}

func TestStateAndTriggerLifecycle(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state struct {
		State   model.SessionState `json:"state"`
		Session *model.SOSSession  `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, model.StateIdle, state.State)
	assert.Nil(t, state.Session)

	rec = f.do(t, http.MethodPost, "/api/sos/trigger?source=widget", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForState(t, f.machine, model.StateActive)
	assert.Equal(t, model.SourceWidget, f.machine.Session().Trigger)

	rec = f.do(t, http.MethodPost, "/api/sos/resolve", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	waitForState(t, f.machine, model.StateIdle)
}

func TestCancelWithoutSession(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/sos/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/sos/resolve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodGet, "/api/sos/trigger", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/state", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestThreatEndpoint(t *testing.T) {
	f := newServer(t)

	// Without a cached assessment the live engine value is served.
	rec := f.do(t, http.MethodGet, "/api/threat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var assessment model.ThreatAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assessment))
	assert.Equal(t, 0, assessment.RiskScore)

	// A cached assessment is served verbatim.
	f.cache.Set([]byte(`{"risk_score":42,"risk_level":"moderate"}`))
	rec = f.do(t, http.MethodGet, "/api/threat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"risk_score":42,"risk_level":"moderate"}`, rec.Body.String())
}

func TestJourneyEndpoints(t *testing.T) {
	f := newServer(t)

	arrival := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := `{"destination_name":"Home","expected_arrival":"` + arrival + `","grace_minutes":5,"companion_id":"c1"}`

	rec := f.do(t, http.MethodPost, "/api/journey/start", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var plan model.JourneyPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, "Home", plan.DestinationName)
	assert.Equal(t, model.JourneyActive, plan.Status)

	// Only one plan at a time.
	rec = f.do(t, http.MethodPost, "/api/journey/start", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/journey", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/journey/extend", `{"minutes":15}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/journey/extend", `{"minutes":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/journey/checkin", `{"ok":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code) // no pending prompt

	rec = f.do(t, http.MethodPost, "/api/journey/confirm", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/journey/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.history.AppendSession(ctx, model.SOSSession{ID: "s", Outcome: model.OutcomeCancelled}))
	}
	require.NoError(t, f.history.AppendJourney(ctx, model.JourneyPlan{ID: "j", Status: model.JourneyConfirmed}))

	rec := f.do(t, http.MethodGet, "/api/history/sessions?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []model.SOSSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)

	rec = f.do(t, http.MethodGet, "/api/history/journeys", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var journeys []model.JourneyPlan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &journeys))
	assert.Len(t, journeys, 1)
}

func TestIngestMotionReturnsAssessment(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/ingest/motion", `{"accel":9.8,"gyro":0.1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var assessment model.ThreatAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assessment))
	assert.GreaterOrEqual(t, assessment.RiskScore, 0)

	rec = f.do(t, http.MethodPost, "/api/ingest/motion", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestLocationUpdatesDevice(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/ingest/location",
		`{"location":{"lat":12.9716,"lon":77.5946,"accuracy":8},"speed":1.2,"battery":47}`)
	require.Equal(t, http.StatusOK, rec.Code)

	loc := f.device.CurrentLocation()
	require.NotNil(t, loc)
	assert.InDelta(t, 12.9716, loc.Lat, 1e-9)
	assert.Equal(t, 47, f.device.BatteryLevel())
}

func TestIngestKeySequenceTriggersSOS(t *testing.T) {
	f := newServer(t)

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/api/ingest/key", `{"code":"power"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	waitForState(t, f.machine, model.StateActive)
	assert.Equal(t, model.SourceButtonSequence, f.machine.Session().Trigger)

	rec := f.do(t, http.MethodPost, "/api/ingest/key", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestSpeechMatchAndCancel(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/ingest/speech", `{"text":"please help me","partial":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Match trigger.MatchKind `json:"match"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, trigger.MatchTrigger, resp.Match)
	waitForState(t, f.machine, model.StateActive)

	// A recognized cancel phrase shuts the session down.
	rec = f.do(t, http.MethodPost, "/api/ingest/speech", `{"text":"i am safe now","partial":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	waitForState(t, f.machine, model.StateIdle)
}

func TestIngestWearable(t *testing.T) {
	f := newServer(t)

	rec := f.do(t, http.MethodPost, "/api/ingest/wearable", `{"signal":"button_press"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForState(t, f.machine, model.StateActive)
	assert.Equal(t, model.SourceWearable, f.machine.Session().Trigger)

	rec = f.do(t, http.MethodPost, "/api/ingest/wearable", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newServer(t)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/state", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin falls back to the first allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("localhost allowed for development", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
