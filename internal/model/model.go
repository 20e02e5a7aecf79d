package model

import (
	"fmt"
	"time"
)

// TriggerSource identifies the adapter that produced a trigger event.
type TriggerSource string

const (
	SourceButtonSequence TriggerSource = "button_sequence"
	SourceShake          TriggerSource = "shake"
	SourceVoice          TriggerSource = "voice"
	SourceWearable       TriggerSource = "wearable"
	SourceThreatCritical TriggerSource = "threat_critical"
	SourceJourneyOverdue TriggerSource = "journey_overdue"
	SourceManual         TriggerSource = "manual"
	SourceWidget         TriggerSource = "widget"
)

// Immediate reports whether events from this source skip the countdown and
// activate the session directly. Critical threats and overdue journeys
// already encode high confidence or explicit auto-escalation consent.
func (s TriggerSource) Immediate() bool {
	return s == SourceThreatCritical || s == SourceJourneyOverdue
}

// TriggerEvent is a normalized signal from any source that can start an
// emergency session. Immutable once created.
type TriggerEvent struct {
	Source     TriggerSource `json:"source"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
	Detail     string        `json:"detail,omitempty"`
}

// Location is a point-in-time position fix.
type Location struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// MapsLink returns a Google Maps URL for the location.
func (l Location) MapsLink() string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", l.Lat, l.Lon)
}

// SessionState is the SOS lifecycle state.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateCountdown  SessionState = "countdown"
	StateActive     SessionState = "active"
	StateCancelling SessionState = "cancelling"
)

// SessionOutcome is the terminal disposition recorded in history.
type SessionOutcome string

const (
	OutcomeCancelled SessionOutcome = "cancelled"
	OutcomeCompleted SessionOutcome = "completed"
	OutcomeFailed    SessionOutcome = "failed"
)

// SOSSession is the emergency session record. Owned exclusively by the SOS
// state machine; everyone else sees copies.
type SOSSession struct {
	ID                 string         `json:"id"`
	State              SessionState   `json:"state"`
	Trigger            TriggerSource  `json:"trigger"`
	StartedAt          time.Time      `json:"started_at"`
	CountdownRemaining int            `json:"countdown_remaining"`
	ContactsNotified   []string       `json:"contacts_notified"`
	SMSSent            int            `json:"sms_sent"`
	EmailSent          int            `json:"email_sent"`
	CallsMade          int            `json:"calls_made"`
	LastKnownLocation  *Location      `json:"last_known_location,omitempty"`
	BatteryAtTrigger   int            `json:"battery_at_trigger"`
	Outcome            SessionOutcome `json:"outcome,omitempty"`
	EndedAt            time.Time      `json:"ended_at,omitempty"`
}

// Notified reports whether the contact has already been recorded as reached.
func (s *SOSSession) Notified(contactID string) bool {
	for _, id := range s.ContactsNotified {
		if id == contactID {
			return true
		}
	}
	return false
}

// Channel is an alert delivery method.
type Channel string

const (
	ChannelSMS          Channel = "sms"
	ChannelEmail        Channel = "email"
	ChannelCall         Channel = "call"
	ChannelLiveLocation Channel = "live_location"
)

// EmergencyContact is a read-only snapshot of a contact taken when a session
// becomes active. The contact store owns the canonical record.
type EmergencyContact struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	Relationship string    `json:"relationship,omitempty"`
	IsPrimary    bool      `json:"is_primary"`
	Channels     []Channel `json:"channels"`
}

// HasChannel reports whether the contact has the channel enabled.
func (c EmergencyContact) HasChannel(ch Channel) bool {
	for _, enabled := range c.Channels {
		if enabled == ch {
			return true
		}
	}
	return false
}

// AttemptOutcome is the terminal status of one delivery attempt.
type AttemptOutcome string

const (
	AttemptPending AttemptOutcome = "pending"
	AttemptSent    AttemptOutcome = "sent"
	AttemptFailed  AttemptOutcome = "failed"
	AttemptSkipped AttemptOutcome = "skipped"
)

// AlertAttempt records one (contact, channel) delivery try. Immutable once
// terminal.
type AlertAttempt struct {
	SessionID string         `json:"session_id"`
	ContactID string         `json:"contact_id"`
	Channel   Channel        `json:"channel"`
	Attempt   int            `json:"attempt"`
	Outcome   AttemptOutcome `json:"outcome"`
	Detail    string         `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// JourneyStatus is the journey/safe-walk plan status.
type JourneyStatus string

const (
	JourneyActive             JourneyStatus = "active"
	JourneyOverdue            JourneyStatus = "overdue"
	JourneyCompanionAlerted   JourneyStatus = "companion_alerted"
	JourneyEmergencyTriggered JourneyStatus = "emergency_triggered"
	JourneyConfirmed          JourneyStatus = "confirmed"
	JourneyCancelled          JourneyStatus = "cancelled"
)

// Terminal reports whether the plan has reached a final status.
func (s JourneyStatus) Terminal() bool {
	return s == JourneyConfirmed || s == JourneyCancelled
}

// CheckInResponse is the outcome of one safe-walk check-in prompt.
type CheckInResponse string

const (
	CheckInPending  CheckInResponse = "pending"
	CheckInOK       CheckInResponse = "ok"
	CheckInHelp     CheckInResponse = "help"
	CheckInTimedOut CheckInResponse = "timed_out"
)

// CheckIn is one prompt/response cycle within a safe-walk plan.
type CheckIn struct {
	RequestedAt time.Time       `json:"requested_at"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
	Response    CheckInResponse `json:"response"`
}

// JourneyPlan covers both journeys and safe walks. A safe walk additionally
// runs periodic check-in cycles while active.
type JourneyPlan struct {
	ID               string        `json:"id"`
	DestinationName  string        `json:"destination_name"`
	Destination      *Location     `json:"destination,omitempty"`
	ExpectedArrival  time.Time     `json:"expected_arrival"`
	GraceMinutes     int           `json:"grace_minutes"`
	AutoSOSOnOverdue bool          `json:"auto_sos_on_overdue"`
	SafeWalk         bool          `json:"safe_walk"`
	CompanionID      string        `json:"companion_id,omitempty"`
	Status           JourneyStatus `json:"status"`
	CheckIns         []CheckIn     `json:"check_ins,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at,omitempty"`
}

// OverdueAt returns the instant the plan becomes overdue.
func (p *JourneyPlan) OverdueAt() time.Time {
	return p.ExpectedArrival.Add(time.Duration(p.GraceMinutes) * time.Minute)
}

// ThreatType identifies one detector in the threat assessment engine.
type ThreatType string

const (
	ThreatFall            ThreatType = "fall"
	ThreatDeviceSnatch    ThreatType = "device_snatch"
	ThreatSuddenStop      ThreatType = "sudden_stop"
	ThreatRunning         ThreatType = "running"
	ThreatStillness       ThreatType = "stillness"
	ThreatRouteDeviation  ThreatType = "route_deviation"
	ThreatErraticMovement ThreatType = "erratic_movement"
	ThreatUnusualLocation ThreatType = "unusual_location"
	ThreatUnusualTime     ThreatType = "unusual_time"
	ThreatSpeedAnomaly    ThreatType = "speed_anomaly"
)

// RiskLevel is the four-tier classification of the current threat score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps a bounded score to its level.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 70:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskModerate
	default:
		return RiskLow
	}
}

// DetectedThreat is one detector hit contributing to the risk score.
type DetectedThreat struct {
	Type        ThreatType `json:"type"`
	Confidence  float64    `json:"confidence"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ThreatAssessment is the engine output for the most recent sample. Only the
// latest assessment is retained.
type ThreatAssessment struct {
	RiskScore       int              `json:"risk_score"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Threats         []DetectedThreat `json:"threats,omitempty"`
	Recommendation  string           `json:"recommendation"`
	ShouldAutoAlert bool             `json:"should_auto_alert"`
	Timestamp       time.Time        `json:"timestamp"`
}
