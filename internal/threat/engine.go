// Package threat implements continuous sensor-fusion risk scoring. The
// engine runs whether or not an SOS session is open; it is both a trigger
// source (critical assessments with a hard-impact threat auto-alert) and a
// live risk feed for the UI.
package threat

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
	"github.com/HarshDev-byte/B-Safe-sub000/internal/trigger"
)

// Detector thresholds.
const (
	fallAccelThreshold   = 25.0 // m/s^2
	suddenStopMeanAccel  = 15.0 // m/s^2 over last 10 samples
	suddenStopPriorSpeed = 5.0  // m/s
	snatchGyroThreshold  = 8.0  // rad/s
	snatchAccelThreshold = 20.0 // m/s^2
	runningSpeed         = 3.5  // m/s
	stillnessSpeed       = 0.5  // m/s
	stillnessDuration    = 5 * time.Minute
	erraticVariance      = 10.0
	nightStartHour       = 23
	nightEndHour         = 5
)

const (
	inertialWindowSize  = 50
	locationHistorySize = 100
	decayWindow         = 30 * time.Second
	autoAlertCooldown   = 30 * time.Second
	meanWindow          = 10
	varianceWindow      = 5
)

// Severity weight per threat type. Score is min(100, sum of weight*confidence)
// over threats inside the decay window.
var severityWeight = map[model.ThreatType]float64{
	model.ThreatFall:            40,
	model.ThreatDeviceSnatch:    35,
	model.ThreatSuddenStop:      30,
	model.ThreatRunning:         25,
	model.ThreatStillness:       20,
	model.ThreatRouteDeviation:  20,
	model.ThreatErraticMovement: 15,
	model.ThreatUnusualLocation: 15,
	model.ThreatUnusualTime:     10,
	model.ThreatSpeedAnomaly:    10,
}

// Only hard-impact threats escalate a critical assessment into an automatic
// trigger. Other critical combinations stay display-only.
var autoAlertTypes = map[model.ThreatType]bool{
	model.ThreatFall:         true,
	model.ThreatDeviceSnatch: true,
	model.ThreatSuddenStop:   true,
}

type inertialSample struct {
	accel float64
	gyro  float64
	at    time.Time
}

type locationSample struct {
	loc   model.Location
	speed float64
	at    time.Time
}

// Engine fuses motion and location streams into the current assessment.
type Engine struct {
	mu    sync.Mutex
	clock clockz.Clock
	bus   *trigger.Bus

	inertial  []inertialSample
	locations []locationSample
	active    map[model.ThreatType]model.DetectedThreat
	latest    model.ThreatAssessment

	lastAutoAlert time.Time
	onAssess      func(model.ThreatAssessment)
	subs          []chan model.ThreatAssessment
}

// New builds an engine. bus may be nil for display-only use; onAssess may be
// nil.
func New(bus *trigger.Bus) *Engine {
	return &Engine{
		clock:  clockz.RealClock,
		bus:    bus,
		active: make(map[model.ThreatType]model.DetectedThreat),
	}
}

// WithClock replaces the clock, for tests.
func (e *Engine) WithClock(c clockz.Clock) *Engine {
	e.clock = c
	return e
}

// OnAssess registers a callback invoked with every new assessment, outside
// any lock the caller holds but inside the engine's. Keep it cheap.
func (e *Engine) OnAssess(fn func(model.ThreatAssessment)) {
	e.mu.Lock()
	e.onAssess = fn
	e.mu.Unlock()
}

// Subscribe returns a stream of assessments and a cancel func that
// unregisters the subscriber. Slow consumers miss updates rather than
// blocking the engine.
func (e *Engine) Subscribe() (<-chan model.ThreatAssessment, func()) {
	ch := make(chan model.ThreatAssessment, 8)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub == ch {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Latest returns the most recent assessment.
func (e *Engine) Latest() model.ThreatAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// AddMotionSample feeds one inertial sample: acceleration magnitude (m/s^2)
// and gyroscopic rotation magnitude (rad/s).
func (e *Engine) AddMotionSample(accel, gyro float64) model.ThreatAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.inertial = append(e.inertial, inertialSample{accel: accel, gyro: gyro, at: now})
	if len(e.inertial) > inertialWindowSize {
		e.inertial = e.inertial[len(e.inertial)-inertialWindowSize:]
	}

	if accel > fallAccelThreshold {
		e.record(model.DetectedThreat{
			Type:        model.ThreatFall,
			Confidence:  math.Min(1.0, accel/50.0),
			Description: fmt.Sprintf("impact %.1f m/s2", accel),
			Timestamp:   now,
		})
	}

	if gyro > snatchGyroThreshold && accel > snatchAccelThreshold {
		e.record(model.DetectedThreat{
			Type:        model.ThreatDeviceSnatch,
			Confidence:  math.Min(1.0, (gyro/snatchGyroThreshold+accel/snatchAccelThreshold)/3.0),
			Description: fmt.Sprintf("rotation %.1f rad/s with %.1f m/s2", gyro, accel),
			Timestamp:   now,
		})
	}

	if e.meanAccel(meanWindow) > suddenStopMeanAccel && e.recentSpeedAbove(suddenStopPriorSpeed) {
		e.record(model.DetectedThreat{
			Type:        model.ThreatSuddenStop,
			Confidence:  0.7,
			Description: "hard deceleration while moving fast",
			Timestamp:   now,
		})
	}

	e.checkUnusualTime(now)
	return e.assessLocked(now)
}

// AddLocationSample feeds one position fix with its speed (m/s).
func (e *Engine) AddLocationSample(loc model.Location, speed float64) model.ThreatAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.locations = append(e.locations, locationSample{loc: loc, speed: speed, at: now})
	if len(e.locations) > locationHistorySize {
		e.locations = e.locations[len(e.locations)-locationHistorySize:]
	}

	if speed > runningSpeed {
		e.record(model.DetectedThreat{
			Type:        model.ThreatRunning,
			Confidence:  math.Min(1.0, speed/(runningSpeed*2)),
			Description: fmt.Sprintf("moving at %.1f m/s", speed),
			Timestamp:   now,
		})
	}

	if e.stillFor(now) {
		e.record(model.DetectedThreat{
			Type:        model.ThreatStillness,
			Confidence:  0.9,
			Description: "no movement for over 5 minutes",
			Timestamp:   now,
		})
	}

	if v := e.speedVariance(varianceWindow); v > erraticVariance {
		e.record(model.DetectedThreat{
			Type:        model.ThreatErraticMovement,
			Confidence:  math.Min(1.0, v/(erraticVariance*2)),
			Description: fmt.Sprintf("speed variance %.1f", v),
			Timestamp:   now,
		})
	}

	e.checkUnusualTime(now)
	return e.assessLocked(now)
}

// Report injects an externally detected threat (route deviation, unusual
// location, speed anomaly come from the journey/maps collaborators).
func (e *Engine) Report(t model.ThreatType, confidence float64, description string) model.ThreatAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.record(model.DetectedThreat{
		Type:        t,
		Confidence:  math.Max(0, math.Min(1, confidence)),
		Description: description,
		Timestamp:   now,
	})
	return e.assessLocked(now)
}

func (e *Engine) checkUnusualTime(now time.Time) {
	hour := now.Hour()
	if hour >= nightStartHour || hour < nightEndHour {
		e.record(model.DetectedThreat{
			Type:        model.ThreatUnusualTime,
			Confidence:  0.6,
			Description: fmt.Sprintf("late hour %02d:00", hour),
			Timestamp:   now,
		})
	}
}

// record keeps at most one live threat per type; a newer detection of the
// same type replaces the old one instead of accumulating.
func (e *Engine) record(t model.DetectedThreat) {
	e.active[t.Type] = t
}

func (e *Engine) meanAccel(n int) float64 {
	if len(e.inertial) == 0 {
		return 0
	}
	start := len(e.inertial) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, s := range e.inertial[start:] {
		sum += s.accel
	}
	return sum / float64(len(e.inertial)-start)
}

// recentSpeedAbove reports whether any of the last few speed samples exceeds
// the threshold.
func (e *Engine) recentSpeedAbove(threshold float64) bool {
	start := len(e.locations) - 3
	if start < 0 {
		start = 0
	}
	for _, s := range e.locations[start:] {
		if s.speed > threshold {
			return true
		}
	}
	return false
}

func (e *Engine) stillFor(now time.Time) bool {
	if len(e.locations) == 0 {
		return false
	}
	cutoff := now.Add(-stillnessDuration)
	sawOld := false
	for _, s := range e.locations {
		if !s.at.After(cutoff) {
			sawOld = true
			continue
		}
		if s.speed > stillnessSpeed {
			return false
		}
	}
	// Need at least the full stillness window of history before declaring
	// prolonged stillness.
	return sawOld
}

func (e *Engine) speedVariance(n int) float64 {
	if len(e.locations) < n {
		return 0
	}
	window := e.locations[len(e.locations)-n:]
	mean := 0.0
	for _, s := range window {
		mean += s.speed
	}
	mean /= float64(n)
	variance := 0.0
	for _, s := range window {
		variance += (s.speed - mean) * (s.speed - mean)
	}
	return variance / float64(n)
}

// assessLocked recomputes the assessment from threats still inside the decay
// window. Caller holds the lock.
func (e *Engine) assessLocked(now time.Time) model.ThreatAssessment {
	cutoff := now.Add(-decayWindow)
	var threats []model.DetectedThreat
	score := 0.0
	autoAlertContributor := false

	for t, detected := range e.active {
		if detected.Timestamp.Before(cutoff) {
			delete(e.active, t)
			continue
		}
		threats = append(threats, detected)
		score += severityWeight[t] * detected.Confidence
		if autoAlertTypes[t] {
			autoAlertContributor = true
		}
	}

	bounded := int(math.Min(100, math.Round(score)))
	level := model.RiskLevelFor(bounded)
	assessment := model.ThreatAssessment{
		RiskScore:       bounded,
		RiskLevel:       level,
		Threats:         threats,
		Recommendation:  recommendationFor(level),
		ShouldAutoAlert: level == model.RiskCritical && autoAlertContributor,
		Timestamp:       now,
	}
	e.latest = assessment

	if assessment.ShouldAutoAlert && e.bus != nil && now.Sub(e.lastAutoAlert) >= autoAlertCooldown {
		e.lastAutoAlert = now
		slog.Warn("critical threat, auto-alerting", "score", bounded, "threats", len(threats))
		e.bus.Publish(model.TriggerEvent{
			Source:     model.SourceThreatCritical,
			Confidence: float64(bounded) / 100.0,
			Timestamp:  now,
			Detail:     fmt.Sprintf("risk %d (%s)", bounded, level),
		})
	}

	if e.onAssess != nil {
		e.onAssess(assessment)
	}
	for _, sub := range e.subs {
		select {
		case sub <- assessment:
		default:
		}
	}
	return assessment
}

func recommendationFor(level model.RiskLevel) string {
	switch level {
	case model.RiskCritical:
		return "Critical risk detected. Emergency contacts are being alerted."
	case model.RiskHigh:
		return "High risk. Consider triggering SOS or moving to a safer area."
	case model.RiskModerate:
		return "Stay aware of your surroundings."
	default:
		return "All clear."
	}
}
