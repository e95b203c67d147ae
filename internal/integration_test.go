package internal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/pump-guard/internal/config"
	"github.com/sweeney/pump-guard/internal/control"
	"github.com/sweeney/pump-guard/internal/gpio"
	"github.com/sweeney/pump-guard/internal/influx"
	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/metrics"
	"github.com/sweeney/pump-guard/internal/mqtt"
	"github.com/sweeney/pump-guard/internal/operator"
	"github.com/sweeney/pump-guard/internal/sensor"
	"github.com/sweeney/pump-guard/internal/status"
	"github.com/sweeney/pump-guard/internal/telemetry"
	"github.com/sweeney/pump-guard/internal/web"
)

const tick = 10 * time.Millisecond

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// pipeline is the daemon wired entirely from fakes.
type pipeline struct {
	sys      *control.System
	sensor   *sensor.FakeSensor
	relay    *gpio.FakeRelay
	encoder  *gpio.FakeEncoder
	store    *config.Store
	reporter *telemetry.Reporter
	tracker  *status.Tracker
	metrics  *metrics.Metrics
	web      *web.Server
}

// newPipeline builds the pipeline around sink. The sensor reads 5A for
// dropAfter reads and 0.1A afterwards.
func newPipeline(t *testing.T, sink telemetry.Sink, dropAfter int) *pipeline {
	t.Helper()

	store := config.Open(filepath.Join(t.TempDir(), "config.yaml"))
	cfg := config.Default()
	cfg.DryThresholdAmps = 0.5
	cfg.HysteresisMarginAmps = 0.1
	cfg.DebounceDuration = 3 * time.Second
	cfg.MinRunDuration = 5 * time.Second
	cfg.TelemetryInterval = 5 * time.Second
	if err := store.Apply(cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	p := &pipeline{
		sensor: &sensor.FakeSensor{Source: func(n int) (float64, error) {
			if n < dropAfter {
				return 5, nil
			}
			return 0.1, nil
		}},
		relay:    gpio.NewFakeRelay(),
		encoder:  gpio.NewFakeEncoder(),
		store:    store,
		reporter: telemetry.NewReporter(sink, telemetry.Options{}),
		tracker:  status.NewTracker(startTime, status.Daemon{PumpID: "well-1", Session: "s1"}),
		metrics:  metrics.New(),
	}
	t.Cleanup(p.reporter.Close)
	p.web = web.New("", p.tracker, p.metrics.Handler(), nil)

	sys, err := control.New(control.Deps{
		Sensor:   p.sensor,
		Relay:    p.relay,
		Events:   p.encoder.Events(),
		Display:  &operator.FakeDisplay{},
		Store:    store,
		Reporter: p.reporter,
		Tracker:  p.tracker,
		Metrics:  p.metrics,
	}, control.Options{
		Calibration: logic.Calibration{Scale: 1, Ceiling: 50},
		WindowSize:  logic.WindowSamples(100*time.Millisecond, tick),
		Settle:      time.Second,
	}, startTime)
	if err != nil {
		t.Fatalf("control.New: %v", err)
	}
	p.sys = sys
	return p
}

// runUntil ticks every period from from to to inclusive.
func (p *pipeline) runUntil(from, to time.Duration) {
	for at := from; at <= to; at += tick {
		p.sys.Tick(startTime.Add(at))
	}
}

// drain polls the reporter until the buffer is empty or the deadline
// passes. Virtual time advances a minute per poll so backoff never stalls it.
func (p *pipeline) drain(t *testing.T, now time.Time) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ; time.Now().Before(deadline); now = now.Add(time.Minute) {
		p.reporter.Poll(now)
		if st := p.reporter.Stats(); st.Buffered == 0 && !st.InFlight {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("telemetry not drained: %+v", p.reporter.Stats())
}

func (p *pipeline) get(t *testing.T, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	p.web.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

// TestIntegrationDryRunEndToEnd runs the full pipeline through a dry-run
// trip and checks every outward surface agrees.
func TestIntegrationDryRunEndToEnd(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Tags = telemetry.Tags{PumpID: "well-1", Session: "s1"}
	p := newPipeline(t, pub, 1000)

	p.encoder.Send(logic.Click)
	p.runUntil(0, 15*time.Second)
	p.drain(t, startTime.Add(16*time.Second))

	if p.relay.IsOn() {
		t.Fatal("relay still on after dry-run trip")
	}

	// Records at 0, 5, 10 and 15s.
	payloads := pub.Sent()
	if len(payloads) != 4 {
		t.Fatalf("expected 4 telemetry records, got %d", len(payloads))
	}
	wantStates := []logic.PumpState{logic.PumpStarting, logic.PumpRunning, logic.PumpRunning, logic.PumpStopped}
	for i, rec := range payloads {
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d: seq %d", i, rec.Seq)
		}
		if rec.PumpState != wantStates[i] {
			t.Errorf("record %d: state %s, want %s", i, rec.PumpState, wantStates[i])
		}
	}
	if payloads[3].DetectionState != logic.DetectionDry {
		t.Errorf("final record detection: got %s, want DRY", payloads[3].DetectionState)
	}

	var msg telemetry.Payload
	if err := json.Unmarshal(pub.Payloads[3], &msg); err != nil {
		t.Fatalf("invalid telemetry payload: %v", err)
	}
	if msg.Pump.ID != "well-1" || msg.Pump.Session != "s1" {
		t.Errorf("payload tags: got id=%q session=%q", msg.Pump.ID, msg.Pump.Session)
	}
	if msg.Pump.State != "STOPPED" || msg.Pump.Detection != "DRY" {
		t.Errorf("payload states: got %s/%s", msg.Pump.State, msg.Pump.Detection)
	}

	code, body := p.get(t, "/index.json")
	if code != http.StatusOK {
		t.Fatalf("/index.json: status %d", code)
	}
	var st status.StatusJSON
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if st.Status.Pump.State != "STOPPED" {
		t.Errorf("status pump state: got %q", st.Status.Pump.State)
	}
	if st.Status.Counts.DryTrips != 1 {
		t.Errorf("status dry trips: got %d", st.Status.Counts.DryTrips)
	}

	code, body = p.get(t, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics: status %d", code)
	}
	if !strings.Contains(body, "pump_guard_dry_trips_total 1") {
		t.Errorf("metrics missing dry trip counter:\n%s", body)
	}

	if code, _ := p.get(t, "/health"); code != http.StatusOK {
		t.Errorf("/health: got %d, want 200", code)
	}
}

// TestIntegrationInfluxSink delivers records over HTTP line protocol.
func TestIntegrationInfluxSink(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		lines = append(lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := newPipeline(t, influx.NewSink(srv.URL+"/write?db=pump", "", "", telemetry.Tags{PumpID: "well-1"}), 1<<30)
	p.encoder.Send(logic.Click)
	p.runUntil(0, 5*time.Second)
	p.drain(t, startTime.Add(6*time.Second))

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[1], "pump,sensor=well-1 current=5,state=2i,detection=0i,seq=2i ") {
		t.Errorf("unexpected line: %q", lines[1])
	}
}

// TestIntegrationTelemetryOutage keeps protecting the pump while the sink
// is down and delivers the backlog once it recovers.
func TestIntegrationTelemetryOutage(t *testing.T) {
	sink := telemetry.NewFakeSink()
	sink.SetErr(errors.New("broker unreachable"))
	p := newPipeline(t, sink, 1000)

	p.encoder.Send(logic.Click)
	p.runUntil(0, 15*time.Second)

	if p.sys.State() != logic.PumpStopped {
		t.Fatalf("expected STOPPED during outage, got %s", p.sys.State())
	}
	st := p.reporter.Stats()
	if st.Failures == 0 {
		t.Error("expected delivery failures during outage")
	}
	if st.Delivered != 0 {
		t.Errorf("expected nothing delivered, got %d", st.Delivered)
	}

	sink.SetErr(nil)
	// Past any backoff.
	p.drain(t, startTime.Add(time.Hour))

	seqs := sink.Seqs()
	if len(seqs) != 4 {
		t.Fatalf("expected 4 records after recovery, got %v", seqs)
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Errorf("record %d: seq %d, want %d", i, s, i+1)
		}
	}
}

// TestIntegrationSensorFaultHealth reports the fault on /health.
func TestIntegrationSensorFaultHealth(t *testing.T) {
	p := newPipeline(t, telemetry.NewFakeSink(), 1<<30)
	p.encoder.Send(logic.Click)
	p.runUntil(0, 2*time.Second)

	p.sensor.ReadError = errors.New("uart gone")
	p.runUntil(2*time.Second+tick, 2*time.Second+3*tick)

	if p.sys.State() != logic.PumpFault {
		t.Fatalf("expected FAULT, got %s", p.sys.State())
	}
	if p.relay.IsOn() {
		t.Error("relay on while faulted")
	}
	if code, _ := p.get(t, "/health"); code != http.StatusServiceUnavailable {
		t.Errorf("/health: got %d, want 503", code)
	}
}

// TestIntegrationOperatorEditPersists edits the threshold from the encoder
// and reloads it from disk.
func TestIntegrationOperatorEditPersists(t *testing.T) {
	p := newPipeline(t, telemetry.NewFakeSink(), 1<<30)

	p.encoder.Send(logic.LongPress, logic.Click, logic.RotateRight, logic.RotateRight, logic.Click)
	p.runUntil(0, 0)
	if err := p.store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reopened := config.Open(p.store.Path())
	if got := reopened.Config().DryThresholdAmps; got < 0.699 || got > 0.701 {
		t.Errorf("persisted threshold: got %v, want 0.7", got)
	}

	_, body := p.get(t, "/index.json")
	if !strings.Contains(body, `"dry_threshold_amps": 0.7`) {
		t.Errorf("status config not updated:\n%s", body)
	}
}
