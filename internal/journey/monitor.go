// Package journey watches one active travel plan and escalates when it goes
// overdue. It runs independently of the SOS machine and feeds the same
// trigger stream when auto-escalation is enabled; otherwise it only alerts
// the companion contact.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/metrics"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

var (
	// ErrPlanActive is returned when starting a plan while one is open.
	ErrPlanActive = errors.New("a journey plan is already active")
	// ErrNoPlan is returned by actions that need an open plan.
	ErrNoPlan = errors.New("no active journey plan")
	// ErrNoPendingCheckIn is returned when responding without a prompt.
	ErrNoPendingCheckIn = errors.New("no pending check-in")
)

// Notifier alerts the companion contact when a plan goes overdue without
// auto-SOS consent.
type Notifier interface {
	NotifyCompanion(ctx context.Context, contactID string, plan model.JourneyPlan) error
}

// HistoryStore archives terminal plans.
type HistoryStore interface {
	AppendJourney(ctx context.Context, p model.JourneyPlan) error
}

// Config holds the safe-walk cadence tunables.
type Config struct {
	CheckInInterval time.Duration
	CheckInTimeout  time.Duration
}

// PlanParams describes a journey or safe walk to start.
type PlanParams struct {
	DestinationName  string          `json:"destination_name"`
	Destination      *model.Location `json:"destination,omitempty"`
	ExpectedArrival  time.Time       `json:"expected_arrival"`
	GraceMinutes     int             `json:"grace_minutes"`
	AutoSOSOnOverdue bool            `json:"auto_sos_on_overdue"`
	SafeWalk         bool            `json:"safe_walk"`
	CompanionID      string          `json:"companion_id,omitempty"`
}

// Monitor owns at most one open plan at a time. All mutations go through its
// mutex; timer goroutines re-check generation and status when they fire, so
// a confirmation processed first always wins the race against a scheduled
// overdue transition.
type Monitor struct {
	mu       sync.Mutex
	clock    clockz.Clock
	cfg      Config
	bus      *trigger.Bus
	notifier Notifier
	history  HistoryStore
	met      *metrics.Metrics

	plan *model.JourneyPlan
	gen  int
	stop chan struct{}

	subs []chan model.JourneyPlan
}

// New builds an idle monitor. notifier, history, and met may be nil.
func New(cfg Config, bus *trigger.Bus, notifier Notifier, history HistoryStore, met *metrics.Metrics) *Monitor {
	if cfg.CheckInInterval <= 0 {
		cfg.CheckInInterval = 5 * time.Minute
	}
	if cfg.CheckInTimeout <= 0 {
		cfg.CheckInTimeout = time.Minute
	}
	return &Monitor{
		clock:    clockz.RealClock,
		cfg:      cfg,
		bus:      bus,
		notifier: notifier,
		history:  history,
		met:      met,
	}
}

// WithClock replaces the clock, for tests.
func (m *Monitor) WithClock(c clockz.Clock) *Monitor {
	m.clock = c
	return m
}

// Current returns a copy of the open plan, or nil.
func (m *Monitor) Current() *model.JourneyPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.planCopyLocked()
}

// Subscribe returns a stream of plan snapshots, including the terminal one,
// and a cancel func that unregisters the subscriber.
func (m *Monitor) Subscribe() (<-chan model.JourneyPlan, func()) {
	ch := make(chan model.JourneyPlan, 8)
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

// Start opens a new plan and schedules its overdue check at
// expectedArrival + grace. Safe walks also begin their check-in cadence.
func (m *Monitor) Start(p PlanParams) (model.JourneyPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan != nil {
		return model.JourneyPlan{}, ErrPlanActive
	}

	now := m.clock.Now()
	m.plan = &model.JourneyPlan{
		ID:               uuid.NewString(),
		DestinationName:  p.DestinationName,
		Destination:      p.Destination,
		ExpectedArrival:  p.ExpectedArrival,
		GraceMinutes:     p.GraceMinutes,
		AutoSOSOnOverdue: p.AutoSOSOnOverdue,
		SafeWalk:         p.SafeWalk,
		CompanionID:      p.CompanionID,
		Status:           model.JourneyActive,
		StartedAt:        now,
	}
	m.armTimersLocked()

	slog.Info("journey started", "id", m.plan.ID, "destination", p.DestinationName,
		"overdue_at", m.plan.OverdueAt(), "auto_sos", p.AutoSOSOnOverdue, "safe_walk", p.SafeWalk)
	m.notifyLocked()
	return *m.planCopyLocked(), nil
}

// armTimersLocked bumps the generation, replaces the stop channel, and
// launches the overdue timer plus the safe-walk loop. Caller holds the lock.
func (m *Monitor) armTimersLocked() {
	m.gen++
	m.stop = make(chan struct{})
	wait := m.plan.OverdueAt().Sub(m.clock.Now())
	go m.overdueTimer(m.gen, m.stop, wait)
	if m.plan.SafeWalk {
		go m.checkInLoop(m.gen, m.stop)
	}
}

// teardownLocked cancels all scheduled work for the current plan. Caller
// holds the lock.
func (m *Monitor) teardownLocked() {
	m.gen++
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *Monitor) overdueTimer(gen int, stop chan struct{}, wait time.Duration) {
	if wait > 0 {
		select {
		case <-m.clock.After(wait):
		case <-stop:
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plan == nil || gen != m.gen || m.plan.Status != model.JourneyActive {
		// Confirmation or cancellation got there first.
		return
	}
	m.escalateLocked(fmt.Sprintf("not confirmed by %s (+%dm grace)",
		m.plan.ExpectedArrival.Format(time.RFC3339), m.plan.GraceMinutes))
}

func (m *Monitor) checkInLoop(gen int, stop chan struct{}) {
	for {
		select {
		case <-m.clock.After(m.cfg.CheckInInterval):
		case <-stop:
			return
		}

		m.mu.Lock()
		if m.plan == nil || gen != m.gen || m.plan.Status != model.JourneyActive {
			m.mu.Unlock()
			return
		}
		m.plan.CheckIns = append(m.plan.CheckIns, model.CheckIn{
			RequestedAt: m.clock.Now(),
			Response:    model.CheckInPending,
		})
		idx := len(m.plan.CheckIns) - 1
		slog.Info("check-in requested", "id", m.plan.ID, "n", idx+1)
		m.notifyLocked()
		m.mu.Unlock()

		select {
		case <-m.clock.After(m.cfg.CheckInTimeout):
		case <-stop:
			return
		}

		m.mu.Lock()
		if m.plan == nil || gen != m.gen {
			m.mu.Unlock()
			return
		}
		if m.plan.CheckIns[idx].Response == model.CheckInPending {
			// No reply counts as an implicit call for help.
			m.plan.CheckIns[idx].Response = model.CheckInTimedOut
			slog.Warn("check-in missed", "id", m.plan.ID, "n", idx+1)
			m.escalateLocked("check-in not answered")
		}
		active := m.plan != nil && m.plan.Status == model.JourneyActive
		m.mu.Unlock()
		if !active {
			return
		}
	}
}

// escalateLocked runs the overdue path: Overdue, then either a direct SOS
// trigger (auto-SOS consent given) or a companion-only alert. The plan stays
// open until the user confirms or cancels. Caller holds the lock.
func (m *Monitor) escalateLocked(reason string) {
	m.plan.Status = model.JourneyOverdue
	m.notifyLocked()

	if m.plan.AutoSOSOnOverdue {
		m.plan.Status = model.JourneyEmergencyTriggered
		slog.Warn("journey overdue, triggering SOS", "id", m.plan.ID, "reason", reason)
		if m.bus != nil {
			m.bus.Publish(model.TriggerEvent{
				Source:     model.SourceJourneyOverdue,
				Confidence: 1.0,
				Timestamp:  m.clock.Now(),
				Detail:     reason,
			})
		}
	} else {
		m.plan.Status = model.JourneyCompanionAlerted
		slog.Warn("journey overdue, alerting companion", "id", m.plan.ID, "companion", m.plan.CompanionID, "reason", reason)
		if m.notifier != nil && m.plan.CompanionID != "" {
			plan := *m.planCopyLocked()
			companion := m.plan.CompanionID
			go func() {
				if err := m.notifier.NotifyCompanion(context.Background(), companion, plan); err != nil {
					slog.Error("companion alert failed", "id", plan.ID, "error", err)
				}
			}()
		}
	}
	m.notifyLocked()
}

// ConfirmArrival marks the plan safe and tears down all pending timers. A
// confirmation processed before a scheduled overdue fire makes that fire a
// no-op.
func (m *Monitor) ConfirmArrival() error {
	return m.finish(model.JourneyConfirmed)
}

// Cancel abandons the plan without marking arrival.
func (m *Monitor) Cancel() error {
	return m.finish(model.JourneyCancelled)
}

func (m *Monitor) finish(status model.JourneyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return ErrNoPlan
	}
	m.teardownLocked()
	m.plan.Status = status
	m.plan.EndedAt = m.clock.Now()

	archived := *m.planCopyLocked()
	m.notifyLocked()
	m.plan = nil

	if m.met != nil {
		m.met.Journeys.WithLabelValues(string(status)).Inc()
	}
	if m.history != nil {
		go func() {
			if err := m.history.AppendJourney(context.Background(), archived); err != nil {
				slog.Error("failed to archive journey", "id", archived.ID, "error", err)
			}
		}()
	}
	slog.Info("journey closed", "id", archived.ID, "status", status)
	return nil
}

// ExtendTime pushes the expected arrival out and reschedules the overdue
// timer. An already-escalated plan returns to Active: the user asking for
// more time supersedes the earlier overdue state.
func (m *Monitor) ExtendTime(minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return ErrNoPlan
	}
	if m.plan.Status.Terminal() {
		return ErrNoPlan
	}
	if minutes <= 0 {
		return fmt.Errorf("extension must be positive, got %d minutes", minutes)
	}

	m.teardownLocked()
	m.plan.ExpectedArrival = m.plan.ExpectedArrival.Add(time.Duration(minutes) * time.Minute)
	m.plan.Status = model.JourneyActive
	m.armTimersLocked()

	slog.Info("journey extended", "id", m.plan.ID, "minutes", minutes, "overdue_at", m.plan.OverdueAt())
	m.notifyLocked()
	return nil
}

// RespondToCheckIn answers the pending safe-walk prompt. ok keeps the walk
// going; anything else escalates immediately, same as a missed check-in.
func (m *Monitor) RespondToCheckIn(ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return ErrNoPlan
	}
	n := len(m.plan.CheckIns)
	if n == 0 || m.plan.CheckIns[n-1].Response != model.CheckInPending {
		return ErrNoPendingCheckIn
	}

	now := m.clock.Now()
	m.plan.CheckIns[n-1].RespondedAt = &now
	if ok {
		m.plan.CheckIns[n-1].Response = model.CheckInOK
		slog.Info("check-in ok", "id", m.plan.ID, "n", n)
		m.notifyLocked()
		return nil
	}

	m.plan.CheckIns[n-1].Response = model.CheckInHelp
	slog.Warn("check-in help requested", "id", m.plan.ID, "n", n)
	m.escalateLocked("help requested at check-in")
	return nil
}

func (m *Monitor) planCopyLocked() *model.JourneyPlan {
	if m.plan == nil {
		return nil
	}
	plan := *m.plan
	plan.CheckIns = append([]model.CheckIn(nil), m.plan.CheckIns...)
	return &plan
}

func (m *Monitor) notifyLocked() {
	if m.plan == nil {
		return
	}
	snapshot := *m.planCopyLocked()
	for _, sub := range m.subs {
		select {
		case sub <- snapshot:
		default:
		}
	}
}
