// Package sos owns the emergency lifecycle. The Machine is the single
// serialization point for every trigger, cancel, and timer tick: adapters on
// independent callback goroutines all funnel through one mutex so no two
// transitions ever interleave.
package sos

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/metrics"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

// Dispatcher runs the alert pipeline for an activated session. It must
// return when ctx is cancelled or all work is done.
type Dispatcher interface {
	Dispatch(ctx context.Context, session model.SOSSession, contacts []model.EmergencyContact)
}

// ContactStore provides a point-in-time snapshot of emergency contacts.
type ContactStore interface {
	ListContacts() []model.EmergencyContact
}

// DeviceStatus reads the current position fix and battery level. Either may
// be unavailable.
type DeviceStatus interface {
	CurrentLocation() *model.Location
	BatteryLevel() int
}

// Alarm drives the siren/flashlight side effects keyed to Active entry and
// exit. Fire-and-forget; delivery success is unrelated.
type Alarm interface {
	Start()
	Stop()
}

// HistoryStore archives terminal sessions and every delivery attempt.
type HistoryStore interface {
	AppendSession(ctx context.Context, s model.SOSSession) error
	AppendAttempt(ctx context.Context, a model.AlertAttempt) error
}

// StateChange is pushed to subscribers on every transition and countdown
// tick.
type StateChange struct {
	State   model.SessionState `json:"state"`
	Session *model.SOSSession  `json:"session,omitempty"`
}

// Config holds the machine's tunables.
type Config struct {
	CountdownSeconds int
	DrainTimeout     time.Duration
}

// Machine is the SOS lifecycle state machine.
type Machine struct {
	mu      sync.Mutex
	clock   clockz.Clock
	cfg     Config
	bus     *trigger.Bus
	disp    Dispatcher
	contact ContactStore
	device  DeviceStatus
	alarm   Alarm
	history HistoryStore
	met     *metrics.Metrics

	state   model.SessionState
	session *model.SOSSession

	countdownGen  int
	countdownStop chan struct{}

	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}

	subs []chan StateChange
}

// New builds an idle machine. alarm, history, and met may be nil; the
// dispatcher is attached afterwards with SetDispatcher because it records
// attempts back through the machine.
func New(cfg Config, bus *trigger.Bus, contacts ContactStore, device DeviceStatus, alarm Alarm, history HistoryStore, met *metrics.Metrics) *Machine {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &Machine{
		clock:   clockz.RealClock,
		cfg:     cfg,
		bus:     bus,
		contact: contacts,
		device:  device,
		alarm:   alarm,
		history: history,
		met:     met,
		state:   model.StateIdle,
	}
}

// WithClock replaces the clock, for tests.
func (m *Machine) WithClock(c clockz.Clock) *Machine {
	m.clock = c
	return m
}

// SetDispatcher attaches the alert pipeline. Must be called before the first
// activation.
func (m *Machine) SetDispatcher(d Dispatcher) {
	m.mu.Lock()
	m.disp = d
	m.mu.Unlock()
}

// Run consumes the trigger bus until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	for {
		select {
		case ev := <-m.bus.Events():
			m.Submit(ev)
		case <-ctx.Done():
			return
		}
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() model.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the open session, or nil when idle.
func (m *Machine) Session() *model.SOSSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionCopyLocked()
}

// Subscribe returns a stream of state changes for live UI binding along
// with a cancel func that unregisters the subscriber. Slow consumers miss
// intermediate updates rather than blocking transitions.
func (m *Machine) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Trigger is the manual SOS entry point, equivalent to a Manual trigger
// event.
func (m *Machine) Trigger() {
	m.Submit(model.TriggerEvent{
		Source:     model.SourceManual,
		Confidence: 1.0,
		Timestamp:  m.clock.Now(),
		Detail:     "manual trigger",
	})
}

// Submit feeds one trigger event through the transition function. Exactly
// one session is created per triggering event while idle; anything arriving
// with a session already open is coalesced.
func (m *Machine) Submit(ev model.TriggerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.met != nil {
		m.met.TriggerEvents.WithLabelValues(string(ev.Source)).Inc()
	}

	if m.state != model.StateIdle {
		slog.Info("trigger coalesced, session already open", "source", ev.Source, "state", m.state)
		if m.met != nil {
			m.met.TriggersCoalesced.Inc()
		}
		return
	}

	now := m.clock.Now()
	m.session = &model.SOSSession{
		ID:        uuid.NewString(),
		Trigger:   ev.Source,
		StartedAt: now,
	}
	slog.Info("session created", "id", m.session.ID, "source", ev.Source, "confidence", ev.Confidence)

	if ev.Source.Immediate() || m.cfg.CountdownSeconds == 0 {
		m.activateLocked()
		return
	}

	m.state = model.StateCountdown
	m.session.State = model.StateCountdown
	m.session.CountdownRemaining = m.cfg.CountdownSeconds
	m.countdownGen++
	m.countdownStop = make(chan struct{})
	go m.runCountdown(m.countdownStop, m.countdownGen)
	m.notifyLocked()
}

func (m *Machine) runCountdown(stop chan struct{}, gen int) {
	for {
		select {
		case <-m.clock.After(time.Second):
			if m.tick(gen) {
				return
			}
		case <-stop:
			return
		}
	}
}

// tick decrements the countdown. Returns true when the goroutine should
// exit because the countdown finished or the session moved on.
func (m *Machine) tick(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != model.StateCountdown || gen != m.countdownGen {
		return true
	}
	m.session.CountdownRemaining--
	if m.session.CountdownRemaining > 0 {
		m.notifyLocked()
		return false
	}
	m.activateLocked()
	return true
}

// activateLocked is the single entry action into Active: snapshot location,
// battery, and contacts, start the alarms, and hand off to the dispatch
// pipeline exactly once. Caller holds the lock.
func (m *Machine) activateLocked() {
	m.state = model.StateActive
	m.session.State = model.StateActive
	m.session.CountdownRemaining = 0
	m.session.LastKnownLocation = m.device.CurrentLocation()
	m.session.BatteryAtTrigger = m.device.BatteryLevel()

	contacts := m.contact.ListContacts()
	slog.Warn("SOS active", "id", m.session.ID, "trigger", m.session.Trigger, "contacts", len(contacts), "battery", m.session.BatteryAtTrigger)

	if m.alarm != nil {
		m.alarm.Start()
	}

	if m.disp != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.dispatchCancel = cancel
		done := make(chan struct{})
		m.dispatchDone = done
		snapshot := *m.session
		go func() {
			m.disp.Dispatch(ctx, snapshot, contacts)
			close(done)
		}()
	}
	m.notifyLocked()
}

// CancelCountdown aborts a pending countdown. Returns false if there is no
// countdown to cancel.
func (m *Machine) CancelCountdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != model.StateCountdown {
		return false
	}
	m.stopCountdownLocked()
	slog.Info("countdown cancelled", "id", m.session.ID)
	m.finishLocked(model.OutcomeCancelled)
	return true
}

// Cancel stops the emergency from any non-idle state. An active session
// passes through Cancelling while in-flight dispatch attempts drain; an
// attempt already on the wire completes or fails normally and its outcome is
// still recorded for audit.
func (m *Machine) Cancel() bool {
	return m.stop(model.OutcomeCancelled)
}

// Resolve closes an active session as handled rather than as a false alarm.
func (m *Machine) Resolve() bool {
	return m.stop(model.OutcomeCompleted)
}

func (m *Machine) stop(outcome model.SessionOutcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case model.StateCountdown:
		m.stopCountdownLocked()
		m.finishLocked(model.OutcomeCancelled)
		return true
	case model.StateActive:
		m.state = model.StateCancelling
		m.session.State = model.StateCancelling
		m.notifyLocked()
		if m.dispatchCancel != nil {
			m.dispatchCancel()
		}
		go m.drain(m.dispatchDone, outcome)
		return true
	default:
		return false
	}
}

// drain waits for the dispatch pipeline to wind down, bounded by the drain
// timeout, then archives the session.
func (m *Machine) drain(done chan struct{}, outcome model.SessionOutcome) {
	if done != nil {
		select {
		case <-done:
		case <-m.clock.After(m.cfg.DrainTimeout):
			slog.Warn("dispatch drain timed out")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != model.StateCancelling {
		return
	}
	m.finishLocked(outcome)
}

// finishLocked archives the session and returns to Idle. Caller holds the
// lock.
func (m *Machine) finishLocked(outcome model.SessionOutcome) {
	sess := *m.session
	sess.Outcome = outcome
	sess.EndedAt = m.clock.Now()

	if m.alarm != nil {
		m.alarm.Stop()
	}
	if m.met != nil {
		m.met.Sessions.WithLabelValues(string(outcome)).Inc()
	}

	m.state = model.StateIdle
	m.session = nil
	m.countdownStop = nil
	m.dispatchCancel = nil
	m.dispatchDone = nil
	m.notifyLocked()

	if m.history != nil {
		go func() {
			if err := m.history.AppendSession(context.Background(), sess); err != nil {
				slog.Error("failed to archive session", "id", sess.ID, "error", err)
			}
		}()
	}
	slog.Info("session closed", "id", sess.ID, "outcome", outcome)
}

func (m *Machine) stopCountdownLocked() {
	if m.countdownStop != nil {
		close(m.countdownStop)
		m.countdownStop = nil
	}
	m.countdownGen++
}

// RecordAttempt implements the dispatch pipeline's attempt sink: it
// aggregates outcomes into the session counters and forwards every attempt
// to history. Outcomes arriving after the session is archived are still
// persisted for audit.
func (m *Machine) RecordAttempt(a model.AlertAttempt) {
	m.mu.Lock()
	if m.session != nil && m.session.ID == a.SessionID && a.Outcome == model.AttemptSent {
		switch a.Channel {
		case model.ChannelSMS:
			m.session.SMSSent++
		case model.ChannelEmail:
			m.session.EmailSent++
		case model.ChannelCall:
			m.session.CallsMade++
		}
		if !m.session.Notified(a.ContactID) && a.ContactID != "" {
			m.session.ContactsNotified = append(m.session.ContactsNotified, a.ContactID)
		}
	}
	m.mu.Unlock()

	if m.met != nil {
		m.met.AlertAttempts.WithLabelValues(string(a.Channel), string(a.Outcome)).Inc()
	}
	if m.history != nil {
		if err := m.history.AppendAttempt(context.Background(), a); err != nil {
			slog.Error("failed to record alert attempt", "session", a.SessionID, "error", err)
		}
	}
}

func (m *Machine) sessionCopyLocked() *model.SOSSession {
	if m.session == nil {
		return nil
	}
	sess := *m.session
	sess.ContactsNotified = append([]string(nil), m.session.ContactsNotified...)
	return &sess
}

func (m *Machine) notifyLocked() {
	change := StateChange{State: m.state, Session: m.sessionCopyLocked()}
	for _, sub := range m.subs {
		select {
		case sub <- change:
		default:
		}
	}
}
