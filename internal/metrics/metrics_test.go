package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/PROX-GOD/mockdeu/internal/interview"
)

func TestMetricsRecordSessionLifecycle(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}

	m.SessionStarted()
	m.StateChanged("s1", interview.StateInitializing, interview.StateAwaitingOfficerUtterance)
	m.TurnRecorded("s1", interview.Turn{Latency: 2 * time.Second})
	m.TurnRecorded("s1", interview.Turn{Index: 1, Flags: []interview.Flag{interview.FlagRecognitionTimeout, interview.FlagAudioUnavailable}})
	m.SpeechRetry("transcribe")
	m.SpeechFailure("transcribe")
	m.Decision("APPROVED")
	m.ArchiveFailed()
	m.SessionEnded("s1", interview.TerminationSignal{Reason: interview.ReasonSequenceExhausted}, 2)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"started", testutil.ToFloat64(m.sessionsStarted), 1},
		{"active", testutil.ToFloat64(m.sessionsActive), 0},
		{"ended", testutil.ToFloat64(m.sessionsEnded.WithLabelValues("sequence-exhausted")), 1},
		{"transitions", testutil.ToFloat64(m.transitions.WithLabelValues("awaiting-officer-utterance")), 1},
		{"turns", testutil.ToFloat64(m.turns), 2},
		{"timeout flags", testutil.ToFloat64(m.turnFlags.WithLabelValues("recognition-timeout")), 1},
		{"audio flags", testutil.ToFloat64(m.turnFlags.WithLabelValues("audio-unavailable")), 1},
		{"retries", testutil.ToFloat64(m.speechRetries.WithLabelValues("transcribe")), 1},
		{"failures", testutil.ToFloat64(m.speechFailures.WithLabelValues("transcribe")), 1},
		{"decisions", testutil.ToFloat64(m.decisions.WithLabelValues("APPROVED")), 1},
		{"archive", testutil.ToFloat64(m.archiveFailures), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(reg)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	a.SessionStarted()
	b.SessionStarted()
	if got := testutil.ToFloat64(a.sessionsStarted); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionStarted()
	m.StateChanged("s", interview.StateInitializing, interview.StateTerminating)
	m.TurnRecorded("s", interview.Turn{})
	m.SessionEnded("s", interview.TerminationSignal{}, 0)
	m.SpeechRetry("synthesize")
	m.SpeechFailure("synthesize")
	m.Decision("DENIED")
	m.ArchiveFailed()
}
