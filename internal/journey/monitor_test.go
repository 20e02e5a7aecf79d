package journey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/store"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	plans []model.JourneyPlan
}

func (n *fakeNotifier) NotifyCompanion(_ context.Context, contactID string, plan model.JourneyPlan) error {
	n.mu.Lock()
	n.calls = append(n.calls, contactID)
	n.plans = append(n.plans, plan)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type monitorFixture struct {
	monitor  *Monitor
	clock    *clockz.FakeClock
	bus      *trigger.Bus
	notifier *fakeNotifier
	history  *store.Memory
}

func newFixture(t *testing.T) *monitorFixture {
	t.Helper()
	bus := trigger.NewBus(8)
	clock := clockz.NewFakeClock()
	notifier := &fakeNotifier{}
	history := store.NewMemory()
	m := New(Config{CheckInInterval: 5 * time.Minute, CheckInTimeout: time.Minute},
		bus, notifier, history, nil).WithClock(clock)
	return &monitorFixture{monitor: m, clock: clock, bus: bus, notifier: notifier, history: history}
}

// step advances the fake clock with settle time on both sides so timer
// goroutines can re-arm between advances.
func (f *monitorFixture) step(d time.Duration) {
	time.Sleep(10 * time.Millisecond)
	f.clock.Advance(d)
	f.clock.BlockUntilReady()
	time.Sleep(10 * time.Millisecond)
}

func (f *monitorFixture) busEvents() []model.TriggerEvent {
	var out []model.TriggerEvent
	for {
		select {
		case ev := <-f.bus.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitForStatus(t *testing.T, m *Monitor, want model.JourneyStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		p := m.Current()
		return p != nil && p.Status == want
	}, time.Second, 5*time.Millisecond, "expected journey status %s", want)
}

func (f *monitorFixture) startPlan(t *testing.T, p PlanParams) model.JourneyPlan {
	t.Helper()
	if p.ExpectedArrival.IsZero() {
		p.ExpectedArrival = f.clock.Now().Add(10 * time.Minute)
	}
	plan, err := f.monitor.Start(p)
	require.NoError(t, err)
	return plan
}

func TestOverdueAlertsCompanion(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{
		DestinationName: "Home",
		GraceMinutes:    2,
		CompanionID:     "comp-1",
	})

	f.step(12 * time.Minute)
	waitForStatus(t, f.monitor, model.JourneyCompanionAlerted)

	require.Eventually(t, func() bool { return f.notifier.callCount() == 1 }, time.Second, 5*time.Millisecond)
	f.notifier.mu.Lock()
	assert.Equal(t, "comp-1", f.notifier.calls[0])
	f.notifier.mu.Unlock()

	// Companion-only escalation never feeds the trigger stream, and the plan
	// stays open until the user acts.
	assert.Empty(t, f.busEvents())
	assert.NotNil(t, f.monitor.Current())
}

func TestOverdueWithAutoSOSTriggers(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{
		DestinationName:  "Home",
		AutoSOSOnOverdue: true,
	})

	f.step(10 * time.Minute)
	waitForStatus(t, f.monitor, model.JourneyEmergencyTriggered)

	events := f.busEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.SourceJourneyOverdue, events[0].Source)
	assert.Equal(t, 1.0, events[0].Confidence)
	assert.Zero(t, f.notifier.callCount())
}

func TestConfirmBeatsOverdueTimer(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{DestinationName: "Home", CompanionID: "comp-1"})

	require.NoError(t, f.monitor.ConfirmArrival())
	assert.Nil(t, f.monitor.Current())

	// A late timer fire must find nothing to escalate.
	f.step(15 * time.Minute)
	assert.Zero(t, f.notifier.callCount())
	assert.Empty(t, f.busEvents())

	require.Eventually(t, func() bool {
		journeys, _ := f.history.RecentJourneys(context.Background(), 10)
		return len(journeys) == 1 && journeys[0].Status == model.JourneyConfirmed
	}, time.Second, 5*time.Millisecond)
}

func TestSecondPlanRejected(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{DestinationName: "Home"})

	_, err := f.monitor.Start(PlanParams{DestinationName: "Office", ExpectedArrival: f.clock.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrPlanActive)
}

func TestActionsWithoutPlan(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.monitor.ConfirmArrival(), ErrNoPlan)
	assert.ErrorIs(t, f.monitor.Cancel(), ErrNoPlan)
	assert.ErrorIs(t, f.monitor.ExtendTime(10), ErrNoPlan)
	assert.ErrorIs(t, f.monitor.RespondToCheckIn(true), ErrNoPlan)
}

func TestCancelArchivesPlan(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{DestinationName: "Home"})

	require.NoError(t, f.monitor.Cancel())
	assert.Nil(t, f.monitor.Current())

	require.Eventually(t, func() bool {
		journeys, _ := f.history.RecentJourneys(context.Background(), 10)
		return len(journeys) == 1 && journeys[0].Status == model.JourneyCancelled
	}, time.Second, 5*time.Millisecond)
}

func TestExtendReschedulesOverdue(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{DestinationName: "Home", CompanionID: "comp-1"})

	// Escalate once, then ask for more time: the plan returns to Active and
	// a fresh overdue timer runs against the pushed-out arrival.
	f.step(10 * time.Minute)
	waitForStatus(t, f.monitor, model.JourneyCompanionAlerted)

	require.NoError(t, f.monitor.ExtendTime(30))
	assert.Equal(t, model.JourneyActive, f.monitor.Current().Status)

	f.step(30 * time.Minute)
	waitForStatus(t, f.monitor, model.JourneyCompanionAlerted)
	require.Eventually(t, func() bool { return f.notifier.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestExtendRejectsBadMinutes(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{DestinationName: "Home"})

	assert.Error(t, f.monitor.ExtendTime(0))
	assert.Error(t, f.monitor.ExtendTime(-5))
}

func TestSafeWalkCheckInCycle(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{
		DestinationName:  "Home",
		ExpectedArrival:  f.clock.Now().Add(time.Hour),
		SafeWalk:         true,
		AutoSOSOnOverdue: true,
	})

	// First prompt appears after one interval.
	f.step(5 * time.Minute)
	require.Eventually(t, func() bool {
		p := f.monitor.Current()
		return p != nil && len(p.CheckIns) == 1 && p.CheckIns[0].Response == model.CheckInPending
	}, time.Second, 5*time.Millisecond)

	// Answering ok keeps the walk going.
	require.NoError(t, f.monitor.RespondToCheckIn(true))
	p := f.monitor.Current()
	assert.Equal(t, model.CheckInOK, p.CheckIns[0].Response)
	assert.NotNil(t, p.CheckIns[0].RespondedAt)
	assert.Equal(t, model.JourneyActive, p.Status)

	// Let the answered prompt's timeout lapse, then reach the next prompt
	// and ignore it: a missed check-in escalates like an overdue arrival.
	f.step(time.Minute)
	f.step(5 * time.Minute)
	require.Eventually(t, func() bool {
		p := f.monitor.Current()
		return p != nil && len(p.CheckIns) == 2
	}, time.Second, 5*time.Millisecond)

	f.step(time.Minute)
	waitForStatus(t, f.monitor, model.JourneyEmergencyTriggered)

	p = f.monitor.Current()
	assert.Equal(t, model.CheckInTimedOut, p.CheckIns[1].Response)
	events := f.busEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.SourceJourneyOverdue, events[0].Source)
}

func TestCheckInHelpEscalatesImmediately(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{
		DestinationName: "Home",
		ExpectedArrival: f.clock.Now().Add(time.Hour),
		SafeWalk:        true,
		CompanionID:     "comp-1",
	})

	f.step(5 * time.Minute)
	require.Eventually(t, func() bool {
		p := f.monitor.Current()
		return p != nil && len(p.CheckIns) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.monitor.RespondToCheckIn(false))

	p := f.monitor.Current()
	assert.Equal(t, model.CheckInHelp, p.CheckIns[0].Response)
	assert.Equal(t, model.JourneyCompanionAlerted, p.Status)
	require.Eventually(t, func() bool { return f.notifier.callCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRespondWithoutPendingPrompt(t *testing.T) {
	f := newFixture(t)
	f.startPlan(t, PlanParams{DestinationName: "Home", SafeWalk: true})

	assert.ErrorIs(t, f.monitor.RespondToCheckIn(true), ErrNoPendingCheckIn)
}

func TestSubscribeSeesPlanUpdates(t *testing.T) {
	f := newFixture(t)
	sub, unsubscribe := f.monitor.Subscribe()
	defer unsubscribe()

	f.startPlan(t, PlanParams{DestinationName: "Home"})

	select {
	case p := <-sub:
		assert.Equal(t, model.JourneyActive, p.Status)
		assert.Equal(t, "Home", p.DestinationName)
	default:
		t.Fatal("expected a buffered plan snapshot")
	}
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	f := newFixture(t)

	sub, unsubscribe := f.monitor.Subscribe()
	unsubscribe()

	f.startPlan(t, PlanParams{DestinationName: "Home"})

	select {
	case p := <-sub:
		t.Fatalf("unsubscribed channel received %v", p.Status)
	default:
	}
	f.monitor.mu.Lock()
	n := len(f.monitor.subs)
	f.monitor.mu.Unlock()
	assert.Zero(t, n)
}
