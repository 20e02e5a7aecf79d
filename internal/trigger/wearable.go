package trigger

import (
	"fmt"
	"log/slog"

	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// WearableSignal is a decoded notification from a paired panic button or
// smartwatch. Pairing and protocol decoding happen outside the core.
type WearableSignal string

const (
	WearableButtonPress      WearableSignal = "button_press"
	WearableDoubleTap        WearableSignal = "double_tap"
	WearableLongPress        WearableSignal = "long_press"
	WearableFallDetected     WearableSignal = "fall_detected"
	WearableHeartRateAnomaly WearableSignal = "heart_rate_anomaly"
	WearableGesture          WearableSignal = "gesture"
)

// Signals that map to a trigger, with per-signal confidence. Heart-rate
// anomalies and gestures are logged but never trigger on their own.
var wearableTriggerConfidence = map[WearableSignal]float64{
	WearableButtonPress:  1.0,
	WearableDoubleTap:    0.9,
	WearableLongPress:    1.0,
	WearableFallDetected: 0.8,
}

// WearableSignalReceiver turns wearable notifications into trigger events.
type WearableSignalReceiver struct {
	base
	bus   *Bus
	clock clockz.Clock
}

func NewWearableSignalReceiver(bus *Bus) *WearableSignalReceiver {
	return &WearableSignalReceiver{
		base:  base{name: "wearable", enabled: true},
		bus:   bus,
		clock: clockz.RealClock,
	}
}

// WithClock replaces the clock, for tests.
func (r *WearableSignalReceiver) WithClock(c clockz.Clock) *WearableSignalReceiver {
	r.clock = c
	return r
}

// HandleSignal feeds one decoded wearable notification.
func (r *WearableSignalReceiver) HandleSignal(sig WearableSignal) {
	r.mu.Lock()
	enabled := r.enabled
	r.mu.Unlock()
	if !enabled {
		return
	}

	confidence, ok := wearableTriggerConfidence[sig]
	if !ok {
		slog.Info("wearable signal logged, no trigger", "signal", sig)
		return
	}

	r.bus.Publish(model.TriggerEvent{
		Source:     model.SourceWearable,
		Confidence: confidence,
		Timestamp:  r.clock.Now(),
		Detail:     fmt.Sprintf("wearable %s", sig),
	})
}
