package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

const namespace = "mockdeu"

// Metrics exposes Prometheus collectors for interview sessions. A nil *Metrics is
// a valid no-op observer.
type Metrics struct {
	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	sessionsEnded   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	turns           prometheus.Counter
	turnFlags       *prometheus.CounterVec
	turnLatency     prometheus.Histogram
	speechRetries   *prometheus.CounterVec
	speechFailures  *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	archiveFailures prometheus.Counter
}

// New registers the collectors with reg, reusing ones already registered under the
// same names.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "started_total",
			Help: "Interview sessions started.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "active",
			Help: "Interview sessions not yet terminated.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "ended_total",
			Help: "Interview sessions terminated, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "transitions_total",
			Help: "Turn controller state transitions, by target state.",
		}, []string{"to"}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "turns_total",
			Help: "Turns recorded across all sessions.",
		}),
		turnFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "controller", Name: "turn_flags_total",
			Help: "Flags attached to recorded turns.",
		}, []string{"flag"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "controller", Name: "response_latency_seconds",
			Help:    "Time from the officer question to the candidate response.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 12, 20},
		}),
		speechRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "speech", Name: "retries_total",
			Help: "Speech gateway calls retried after a transient failure.",
		}, []string{"op"}),
		speechFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "speech", Name: "failures_total",
			Help: "Speech gateway calls that failed after retries.",
		}, []string{"op"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scoring", Name: "decisions_total",
			Help: "Scored interviews, by decision.",
		}, []string{"decision"}),
		archiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "archive", Name: "failures_total",
			Help: "Case archive writes that failed.",
		}),
	}

	m.sessionsStarted = register(reg, m.sessionsStarted)
	m.sessionsActive = register(reg, m.sessionsActive)
	m.sessionsEnded = register(reg, m.sessionsEnded)
	m.transitions = register(reg, m.transitions)
	m.turns = register(reg, m.turns)
	m.turnFlags = register(reg, m.turnFlags)
	m.turnLatency = register(reg, m.turnLatency)
	m.speechRetries = register(reg, m.speechRetries)
	m.speechFailures = register(reg, m.speechFailures)
	m.decisions = register(reg, m.decisions)
	m.archiveFailures = register(reg, m.archiveFailures)
	if m.sessionsStarted == nil || m.sessionsActive == nil || m.sessionsEnded == nil ||
		m.transitions == nil || m.turns == nil || m.turnFlags == nil || m.turnLatency == nil ||
		m.speechRetries == nil || m.speechFailures == nil || m.decisions == nil || m.archiveFailures == nil {
		return nil, fmt.Errorf("metrics: collector registered with a different type")
	}
	return m, nil
}

// register adds c to reg, returning the existing collector when one with the same
// descriptor is already registered, or nil when its type does not match.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	var zero C
	return zero
}

// SessionStarted counts a new session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) StateChanged(_ string, _, to interview.State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) TurnRecorded(_ string, turn interview.Turn) {
	if m == nil {
		return
	}
	m.turns.Inc()
	for _, f := range turn.Flags {
		m.turnFlags.WithLabelValues(string(f)).Inc()
	}
	if !turn.HasFlag(interview.FlagRecognitionTimeout) {
		m.turnLatency.Observe(turn.Latency.Seconds())
	}
}

func (m *Metrics) SessionEnded(_ string, sig interview.TerminationSignal, _ int) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsEnded.WithLabelValues(string(sig.Reason)).Inc()
}

func (m *Metrics) SpeechRetry(op string) {
	if m == nil {
		return
	}
	m.speechRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) SpeechFailure(op string) {
	if m == nil {
		return
	}
	m.speechFailures.WithLabelValues(op).Inc()
}

// Decision counts a scored interview.
func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ArchiveFailed() {
	if m == nil {
		return
	}
	m.archiveFailures.Inc()
}
