package trigger

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zoobzio/clockz"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Default multilingual phrase tables. Matching is case-insensitive substring.
var (
	defaultTriggerPhrases = []string{
		"help me", "emergency", "save me", "call for help", "sos",
		"bachao",          // Hindi/Urdu
		"madad karo",      // Hindi
		"ayuda",           // Spanish
		"socorro",         // Spanish/Portuguese
		"au secours",      // French
		"hilfe",           // German
		"aiuto",           // Italian
		"tasukete",        // Japanese (romanized)
		"jiu ming",        // Mandarin (romanized)
	}
	defaultCancelPhrases = []string{
		"i am safe", "i'm safe", "cancel sos", "false alarm", "stop alert",
		"main theek hoon", // Hindi
		"estoy bien",      // Spanish
		"tout va bien",    // French
	}
)

// MatchKind classifies an utterance.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchTrigger
	MatchCancel
)

// PhraseMatcher checks recognized speech against trigger and cancel phrase
// tables. Trigger phrases win when both match in the same utterance.
// Streaming partial results are checked eagerly for trigger phrases only, to
// shave latency off activation; cancellation waits for the final result.
type PhraseMatcher struct {
	base
	bus            *Bus
	clock          clockz.Clock
	triggerPhrases []string
	cancelPhrases  []string
	onCancel       func()
}

// NewPhraseMatcher builds a matcher with the default multilingual tables.
// onCancel is invoked when a final utterance matches a cancel phrase; it may
// be nil.
func NewPhraseMatcher(bus *Bus, onCancel func()) *PhraseMatcher {
	return &PhraseMatcher{
		base:           base{name: "voice", enabled: true},
		bus:            bus,
		clock:          clockz.RealClock,
		triggerPhrases: defaultTriggerPhrases,
		cancelPhrases:  defaultCancelPhrases,
		onCancel:       onCancel,
	}
}

// WithClock replaces the clock, for tests.
func (m *PhraseMatcher) WithClock(c clockz.Clock) *PhraseMatcher {
	m.clock = c
	return m
}

// WithPhrases overrides the phrase tables.
func (m *PhraseMatcher) WithPhrases(triggers, cancels []string) *PhraseMatcher {
	m.triggerPhrases = triggers
	m.cancelPhrases = cancels
	return m
}

// HandleUtterance feeds one recognition result. partial marks a streaming
// intermediate result. Returns what the utterance matched.
func (m *PhraseMatcher) HandleUtterance(text string, partial bool) MatchKind {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return MatchNone
	}

	lowered := strings.ToLower(text)

	if phrase := firstMatch(lowered, m.triggerPhrases); phrase != "" {
		m.bus.Publish(model.TriggerEvent{
			Source:     model.SourceVoice,
			Confidence: voiceConfidence(partial),
			Timestamp:  m.clock.Now(),
			Detail:     fmt.Sprintf("matched %q", phrase),
		})
		return MatchTrigger
	}

	if partial {
		return MatchNone
	}

	if phrase := firstMatch(lowered, m.cancelPhrases); phrase != "" {
		slog.Info("cancel phrase recognized", "phrase", phrase)
		if m.onCancel != nil {
			m.onCancel()
		}
		return MatchCancel
	}

	return MatchNone
}

func firstMatch(lowered string, phrases []string) string {
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return p
		}
	}
	return ""
}

func voiceConfidence(partial bool) float64 {
	if partial {
		return 0.7
	}
	return 0.9
}
