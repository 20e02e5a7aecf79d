package trigger

import (
	"fmt"
	"math"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// ShakeDetector requires N consecutive acceleration-magnitude samples above
// the threshold inside a sliding window. Threshold and N trade sensitivity
// against false positives and are user-tunable.
type ShakeDetector struct {
	base
	bus       *Bus
	clock     clockz.Clock
	threshold float64
	needed    int
	window    time.Duration

	streak  int
	firstAt time.Time
	peak    float64
}

func NewShakeDetector(bus *Bus, threshold float64, samples int, window time.Duration) *ShakeDetector {
	return &ShakeDetector{
		base:      base{name: "shake", enabled: true},
		bus:       bus,
		clock:     clockz.RealClock,
		threshold: threshold,
		needed:    samples,
		window:    window,
	}
}

// WithClock replaces the clock, for tests.
func (d *ShakeDetector) WithClock(c clockz.Clock) *ShakeDetector {
	d.clock = c
	return d
}

// HandleSample feeds one acceleration-magnitude sample (m/s^2).
func (d *ShakeDetector) HandleSample(magnitude float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return
	}

	now := d.clock.Now()
	if magnitude < d.threshold {
		d.streak = 0
		d.peak = 0
		return
	}
	if d.streak > 0 && now.Sub(d.firstAt) > d.window {
		d.streak = 0
		d.peak = 0
	}
	if d.streak == 0 {
		d.firstAt = now
	}
	d.streak++
	d.peak = math.Max(d.peak, magnitude)

	if d.streak < d.needed {
		return
	}

	confidence := math.Min(1.0, d.peak/(d.threshold*2))
	detail := fmt.Sprintf("%d samples above %.1f m/s2, peak %.1f", d.streak, d.threshold, d.peak)
	d.streak = 0
	d.peak = 0

	d.bus.Publish(model.TriggerEvent{
		Source:     model.SourceShake,
		Confidence: confidence,
		Timestamp:  now,
		Detail:     detail,
	})
}
