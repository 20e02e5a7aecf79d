package trigger

import (
	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// ManualTrigger covers the explicit SOS button in the app and its home-screen
// widget. It is always enabled: a deliberate user action cannot be
// configured away.
type ManualTrigger struct {
	bus   *Bus
	clock clockz.Clock
}

func NewManualTrigger(bus *Bus) *ManualTrigger {
	return &ManualTrigger{bus: bus, clock: clockz.RealClock}
}

// WithClock replaces the clock, for tests.
func (t *ManualTrigger) WithClock(c clockz.Clock) *ManualTrigger {
	t.clock = c
	return t
}

// Trigger publishes a manual trigger event. source must be SourceManual or
// SourceWidget; anything else is coerced to SourceManual.
func (t *ManualTrigger) Trigger(source model.TriggerSource, detail string) {
	if source != model.SourceManual && source != model.SourceWidget {
		source = model.SourceManual
	}
	t.bus.Publish(model.TriggerEvent{
		Source:     source,
		Confidence: 1.0,
		Timestamp:  t.clock.Now(),
		Detail:     detail,
	})
}
