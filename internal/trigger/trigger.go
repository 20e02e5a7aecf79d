// Package trigger contains the source adapters that turn raw input events
// (key codes, accelerometer samples, recognized speech, wearable signals)
// into canonical trigger events, and the Bus that merges them into the
// single stream consumed by the SOS state machine.
package trigger

import (
	"log/slog"
	"sync"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Source is implemented by every adapter. Adapters are independently
// enable/disable-able; a disabled adapter drops its detections.
type Source interface {
	Name() string
	Enabled() bool
	SetEnabled(bool)
}

// Bus is the merge point for all trigger sources. Publishing never blocks a
// producer callback: if the consumer falls behind the event is dropped and
// logged, not queued unboundedly.
type Bus struct {
	ch chan model.TriggerEvent
}

func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 16
	}
	return &Bus{ch: make(chan model.TriggerEvent, buffer)}
}

// Publish enqueues an event for the state machine.
func (b *Bus) Publish(ev model.TriggerEvent) {
	select {
	case b.ch <- ev:
		slog.Info("trigger published", "source", ev.Source, "confidence", ev.Confidence, "detail", ev.Detail)
	default:
		slog.Warn("trigger bus full, dropping event", "source", ev.Source)
	}
}

// Events returns the merged trigger stream.
func (b *Bus) Events() <-chan model.TriggerEvent {
	return b.ch
}

// base carries the enable switch shared by all adapters.
type base struct {
	mu      sync.Mutex
	name    string
	enabled bool
}

func (a *base) Name() string { return a.name }

func (a *base) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *base) SetEnabled(on bool) {
	a.mu.Lock()
	a.enabled = on
	a.mu.Unlock()
	slog.Info("trigger source toggled", "source", a.name, "enabled", on)
}
