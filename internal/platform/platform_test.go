package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

func TestDevice(t *testing.T) {
	d := NewDevice()
	assert.Nil(t, d.CurrentLocation())
	assert.Equal(t, -1, d.BatteryLevel())

	d.UpdateLocation(model.Location{Lat: 12.9716, Lon: 77.5946})
	d.SetBattery(55)

	loc := d.CurrentLocation()
	require.NotNil(t, loc)
	assert.Equal(t, 12.9716, loc.Lat)
	assert.Equal(t, 55, d.BatteryLevel())

	// Returned fix is a copy.
	loc.Lat = 0
	assert.Equal(t, 12.9716, d.CurrentLocation().Lat)
}

func TestFileContacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	fc := NewFileContacts(path)

	t.Run("missing file yields empty list", func(t *testing.T) {
		assert.Empty(t, fc.ListContacts())
	})

	t.Run("reads current file content on every call", func(t *testing.T) {
		contacts := []model.EmergencyContact{
			{ID: "c1", Name: "Asha", Phone: "+911111111111", IsPrimary: true, Channels: []model.Channel{model.ChannelSMS}},
		}
		data, err := json.Marshal(contacts)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		got := fc.ListContacts()
		require.Len(t, got, 1)
		assert.Equal(t, "Asha", got[0].Name)

		contacts = append(contacts, model.EmergencyContact{ID: "c2", Name: "Ravi"})
		data, err = json.Marshal(contacts)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		assert.Len(t, fc.ListContacts(), 2)
	})

	t.Run("malformed file yields empty list", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
		assert.Empty(t, fc.ListContacts())
	})
}

func TestWebhookGateway(t *testing.T) {
	type received struct {
		Kind string `json:"kind"`
		To   string `json:"to"`
		Text string `json:"text"`
	}
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body received
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewWebhookGateway(srv.URL)
	ctx := context.Background()

	require.NoError(t, g.SendSMS(ctx, "+911111111111", "help"))
	require.NoError(t, g.SendEmail(ctx, "friend@example.com", "help"))
	require.NoError(t, g.PlaceCall(ctx, "112"))

	require.Len(t, got, 3)
	assert.Equal(t, received{Kind: "sms", To: "+911111111111", Text: "help"}, got[0])
	assert.Equal(t, received{Kind: "email", To: "friend@example.com", Text: "help"}, got[1])
	assert.Equal(t, received{Kind: "call", To: "112"}, got[2])
}

func TestWebhookGatewayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewWebhookGateway(srv.URL)
	err := g.SendSMS(context.Background(), "+911111111111", "help")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
