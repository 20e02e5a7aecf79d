package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the safety core.
type Metrics struct {
	TriggerEvents     *prometheus.CounterVec
	TriggersCoalesced prometheus.Counter
	Sessions          *prometheus.CounterVec
	AlertAttempts     *prometheus.CounterVec
	Journeys          *prometheus.CounterVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TriggerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bsafe_trigger_events_total",
			Help: "Trigger events received by the state machine, by source.",
		}, []string{"source"}),
		TriggersCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "bsafe_triggers_coalesced_total",
			Help: "Triggers ignored because a session was already open.",
		}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bsafe_sessions_total",
			Help: "Closed SOS sessions, by terminal outcome.",
		}, []string{"outcome"}),
		AlertAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bsafe_alert_attempts_total",
			Help: "Alert delivery attempts, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		Journeys: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bsafe_journeys_total",
			Help: "Closed journey plans, by terminal status.",
		}, []string{"status"}),
	}
}
