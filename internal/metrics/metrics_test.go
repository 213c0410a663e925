package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.SessionStarted()
	m.ObservePoll("not_ready", 20*time.Millisecond)
	m.ObservePoll("ready", 10*time.Millisecond)
	m.SessionFinished("done", 5*time.Second)

	if got := testutil.ToFloat64(m.PollsTotal.WithLabelValues("ready")); got != 1 {
		t.Errorf("polls_total{result=ready} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("sessions_active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("done")); got != 1 {
		t.Errorf("sessions_finished_total{state=done} = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

// TestNew_SharedRegistry verifies a second set of collectors on the same
// registry reuses the first one instead of failing.
func TestNew_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(reg)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	second, err := New(reg)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}

	second.SessionStarted()
	if got := testutil.ToFloat64(first.SessionsStarted); got != 1 {
		t.Errorf("shared sessions_started_total = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	// must not panic
	m.SessionStarted()
	m.ObservePoll("error", time.Second)
	m.SessionFinished("failed", time.Second)
}

func TestNew_NilRegisterer(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) error = %v", err)
	}
	m.SessionStarted()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
}
