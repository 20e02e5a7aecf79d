package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// ButtonSequenceMatcher watches hardware key events for a configured ordered
// pattern inside a bounded time window. A partial sequence resets after an
// inactivity timeout or when the whole window elapses.
type ButtonSequenceMatcher struct {
	base
	bus       *Bus
	clock     clockz.Clock
	pattern   []string
	window    time.Duration
	idleReset time.Duration

	progress int
	startAt  time.Time
	lastAt   time.Time
}

func NewButtonSequenceMatcher(bus *Bus, pattern []string, window, idleReset time.Duration) *ButtonSequenceMatcher {
	return &ButtonSequenceMatcher{
		base:      base{name: "button", enabled: true},
		bus:       bus,
		clock:     clockz.RealClock,
		pattern:   pattern,
		window:    window,
		idleReset: idleReset,
	}
}

// WithClock replaces the clock, for tests.
func (m *ButtonSequenceMatcher) WithClock(c clockz.Clock) *ButtonSequenceMatcher {
	m.clock = c
	return m
}

// HandleKey feeds one key event into the matcher. Emits at most one trigger
// event, on an exact pattern match.
func (m *ButtonSequenceMatcher) HandleKey(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return
	}

	now := m.clock.Now()
	if m.progress > 0 {
		if now.Sub(m.lastAt) > m.idleReset || now.Sub(m.startAt) > m.window {
			m.progress = 0
		}
	}

	if code != m.pattern[m.progress] {
		// A wrong key restarts matching; the wrong key itself may begin
		// a fresh sequence.
		m.progress = 0
		if code != m.pattern[0] {
			return
		}
	}

	if m.progress == 0 {
		m.startAt = now
	}
	m.progress++
	m.lastAt = now

	if m.progress < len(m.pattern) {
		return
	}
	m.progress = 0

	m.bus.Publish(model.TriggerEvent{
		Source:     model.SourceButtonSequence,
		Confidence: 1.0,
		Timestamp:  now,
		Detail:     fmt.Sprintf("sequence %s", strings.Join(m.pattern, ",")),
	})
}
