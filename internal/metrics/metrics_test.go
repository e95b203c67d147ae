package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/telemetry"
)

func TestUpdateGauges(t *testing.T) {
	m := New()
	m.Update(Sample{
		CurrentAmps:      4.5,
		PumpState:        logic.PumpRunning,
		Detection:        logic.DetectionSuspect,
		DryThresholdAmps: 0.5,
		Telemetry:        telemetry.Stats{Buffered: 7},
	})

	if got := testutil.ToFloat64(m.current); got != 4.5 {
		t.Fatalf("expected current 4.5, got %f", got)
	}
	if got := testutil.ToFloat64(m.pumpState); got != 2 {
		t.Fatalf("expected pump state code 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.detection); got != 1 {
		t.Fatalf("expected detection code 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.threshold); got != 0.5 {
		t.Fatalf("expected threshold 0.5, got %f", got)
	}
	if got := testutil.ToFloat64(m.buffered); got != 7 {
		t.Fatalf("expected 7 buffered, got %f", got)
	}
}

func TestUpdateCountersAddDeltas(t *testing.T) {
	m := New()
	m.Update(Sample{
		Counts:            logic.EventCounts{DryTrips: 1, RejectedStarts: 2},
		Telemetry:         telemetry.Stats{Delivered: 10, Dropped: 1, Failures: 3},
		SensorUnavailable: 4,
	})
	m.Update(Sample{
		Counts:            logic.EventCounts{DryTrips: 2, RejectedStarts: 2, Faults: 1},
		Telemetry:         telemetry.Stats{Delivered: 15, Dropped: 1, Failures: 3},
		SensorUnavailable: 4,
	})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"dry trips", testutil.ToFloat64(m.dryTrips), 2},
		{"rejected", testutil.ToFloat64(m.rejected), 2},
		{"faults", testutil.ToFloat64(m.faults), 1},
		{"unavailable", testutil.ToFloat64(m.unavailable), 4},
		{"delivered", testutil.ToFloat64(m.delivered), 15},
		{"dropped", testutil.ToFloat64(m.dropped), 1},
		{"failures", testutil.ToFloat64(m.failures), 3},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %f, want %f", tt.name, tt.got, tt.want)
		}
	}
}

func TestObserveTransitions(t *testing.T) {
	m := New()
	m.ObserveTransitions([]logic.Transition{
		{To: logic.PumpStopping},
		{To: logic.PumpStopped},
	})
	m.ObserveTransitions([]logic.Transition{{To: logic.PumpStopped}})

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("STOPPED")); got != 2 {
		t.Fatalf("expected 2 STOPPED transitions, got %f", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("STOPPING")); got != 1 {
		t.Fatalf("expected 1 STOPPING transition, got %f", got)
	}
}

func TestObserveTick(t *testing.T) {
	m := New()
	m.ObserveTick(200 * time.Microsecond)
	if samples := testutil.CollectAndCount(m.tick); samples != 1 {
		t.Fatalf("expected tick histogram to record 1 sample, got %d", samples)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Update(Sample{CurrentAmps: 3.25, PumpState: logic.PumpIdle, Detection: logic.DetectionWet})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pump_guard_current_amps 3.25") {
		t.Errorf("current gauge missing from output:\n%s", rec.Body.String())
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Update(Sample{CurrentAmps: 1})
	if got := testutil.ToFloat64(b.current); got != 0 {
		t.Errorf("expected independent registries, got %f", got)
	}
}
