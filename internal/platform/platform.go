// Package platform holds the default implementations of the device and
// vendor collaborators the core consumes: contact snapshots, the current
// position/battery fix, and the outbound channel gateways. Real deployments
// swap these for the platform services behind the same interfaces.
package platform

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Device tracks the most recent position fix and battery level reported by
// the companion app.
type Device struct {
	mu      sync.RWMutex
	loc     *model.Location
	battery int
}

func NewDevice() *Device {
	return &Device{battery: -1}
}

// CurrentLocation returns the latest fix, or nil when none was reported.
func (d *Device) CurrentLocation() *model.Location {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.loc == nil {
		return nil
	}
	loc := *d.loc
	return &loc
}

// BatteryLevel returns the latest battery percentage, or -1 when unknown.
func (d *Device) BatteryLevel() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.battery
}

// UpdateLocation records a new fix.
func (d *Device) UpdateLocation(loc model.Location) {
	d.mu.Lock()
	d.loc = &loc
	d.mu.Unlock()
}

// SetBattery records the battery percentage.
func (d *Device) SetBattery(level int) {
	d.mu.Lock()
	d.battery = level
	d.mu.Unlock()
}

// FileContacts reads the emergency contact list maintained by the contacts
// service. Every call re-reads the file, so the core always sees the
// snapshot current at activation time.
type FileContacts struct {
	path string
}

func NewFileContacts(path string) *FileContacts {
	return &FileContacts{path: path}
}

func (f *FileContacts) ListContacts() []model.EmergencyContact {
	data, err := os.ReadFile(f.path)
	if err != nil {
		slog.Warn("contacts file unavailable", "path", f.path, "error", err)
		return nil
	}
	var contacts []model.EmergencyContact
	if err := json.Unmarshal(data, &contacts); err != nil {
		slog.Error("contacts file malformed", "path", f.path, "error", err)
		return nil
	}
	return contacts
}

// LogGateway is the channel-sender stand-in used when no vendor gateway is
// configured. Every send succeeds and is written to the log.
type LogGateway struct{}

func (LogGateway) SendSMS(ctx context.Context, phone, text string) error {
	slog.Info("sms gateway", "to", phone, "text", text)
	return nil
}

func (LogGateway) SendEmail(ctx context.Context, address, text string) error {
	slog.Info("email gateway", "to", address, "text", text)
	return nil
}

func (LogGateway) PlaceCall(ctx context.Context, phone string) error {
	slog.Info("call gateway", "to", phone)
	return nil
}

// LogAlarm logs the siren/flashlight side effects.
type LogAlarm struct{}

func (LogAlarm) Start() { slog.Warn("alarm on: siren + flashlight strobe") }
func (LogAlarm) Stop()  { slog.Info("alarm off") }
