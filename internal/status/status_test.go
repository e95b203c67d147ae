package status

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/telemetry"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testDaemon() Daemon {
	return Daemon{PumpID: "well-1", Session: "s1", Sink: "mqtt", Target: "tcp://localhost:1883", HTTPAddr: ":80", TickMs: 10, WindowMs: 100, SettleMs: 2000}
}

func testConfig() logic.Config {
	return logic.Config{
		DryThresholdAmps:     0.5,
		DebounceDuration:     3 * time.Second,
		HysteresisMarginAmps: 0.1,
		MinRunDuration:       5 * time.Second,
		CooldownDuration:     30 * time.Second,
		TelemetryInterval:    15 * time.Second,
		WetLoadPercent:       60,
	}
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker(start, testDaemon())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Daemon.PumpID != "well-1" {
		t.Errorf("Daemon.PumpID: got %q, want well-1", snap.Daemon.PumpID)
	}
	if snap.Pump.State != logic.PumpIdle {
		t.Errorf("expected IDLE initially, got %s", snap.Pump.State)
	}
	if snap.SinkConnected {
		t.Error("expected SinkConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Daemon{})

	tr.Update(Pump{
		State:       logic.PumpRunning,
		Detection:   logic.DetectionSuspect,
		CurrentAmps: 0.4,
		RelayOn:     true,
		Counts:      logic.EventCounts{Starts: 3, DryTrips: 1},
	}, testConfig(), telemetry.Stats{Buffered: 2, Capacity: 240})

	snap := tr.Snapshot()
	if snap.Pump.State != logic.PumpRunning {
		t.Errorf("State: got %q, want RUNNING", snap.Pump.State)
	}
	if snap.Pump.Detection != logic.DetectionSuspect {
		t.Errorf("Detection: got %q, want SUSPECT", snap.Pump.Detection)
	}
	if !snap.Pump.RelayOn {
		t.Error("expected RelayOn=true")
	}
	if snap.Pump.Counts.Starts != 3 {
		t.Errorf("Counts.Starts: got %d, want 3", snap.Pump.Counts.Starts)
	}
	if snap.Config.DryThresholdAmps != 0.5 {
		t.Errorf("Config.DryThresholdAmps: got %v, want 0.5", snap.Config.DryThresholdAmps)
	}
	if snap.Telemetry.Buffered != 2 {
		t.Errorf("Telemetry.Buffered: got %d, want 2", snap.Telemetry.Buffered)
	}
}

func TestSetSinkConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Daemon{})

	tr.SetSinkConnected(true)
	if !tr.Snapshot().SinkConnected {
		t.Error("expected SinkConnected=true")
	}

	tr.SetSinkConnected(false)
	if tr.Snapshot().SinkConnected {
		t.Error("expected SinkConnected=false")
	}
}

func TestSetOperator(t *testing.T) {
	tr := NewTracker(time.Now(), Daemon{})
	tr.SetOperator("edit", "1.00")

	snap := tr.Snapshot()
	if snap.OperatorMode != "edit" || snap.Display != "1.00" {
		t.Errorf("operator: got %q/%q", snap.OperatorMode, snap.Display)
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Daemon{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Daemon{})
	tr.Update(Pump{State: logic.PumpRunning}, testConfig(), telemetry.Stats{})

	snap1 := tr.Snapshot()

	tr.Update(Pump{State: logic.PumpStopped}, testConfig(), telemetry.Stats{})

	// snap1 should still reflect old state
	if snap1.Pump.State != logic.PumpRunning {
		t.Error("snapshot should be a copy; State was modified")
	}
}

func testSnapshot() Snapshot {
	return Snapshot{
		Pump: Pump{
			State:             logic.PumpStopped,
			StateSince:        start.Add(14 * time.Minute),
			Detection:         logic.DetectionDry,
			CurrentAmps:       0.1,
			LastStart:         start.Add(time.Minute),
			LastStop:          start.Add(14 * time.Minute),
			CooldownRemaining: 29 * time.Second,
			Counts:            logic.EventCounts{Starts: 5, Stops: 5, DryTrips: 2},
		},
		Config: testConfig(),
		Telemetry: telemetry.Stats{
			Buffered:  3,
			Capacity:  240,
			Delivered: 57,
			Failures:  1,
			Backoff:   5 * time.Second,
			LastError: errors.New("telemetry delivery failed: mqtt not connected"),
		},
		SinkConnected: true,
		OperatorMode:  "home",
		Display:       "OFF",
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		Daemon:        testDaemon(),
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Pump.State != "STOPPED" {
		t.Errorf("State: got %q, want STOPPED", s.Pump.State)
	}
	if s.Pump.Detection != "DRY" {
		t.Errorf("Detection: got %q, want DRY", s.Pump.Detection)
	}
	if s.Pump.CooldownRemaining != 29 {
		t.Errorf("CooldownRemaining: got %v, want 29", s.Pump.CooldownRemaining)
	}
	if s.Pump.LastStop != "2026-01-01T00:14:00Z" {
		t.Errorf("LastStop: got %q", s.Pump.LastStop)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.Telemetry.Connected || s.Telemetry.Sink != "mqtt" {
		t.Errorf("unexpected telemetry: %+v", s.Telemetry)
	}
	if s.Telemetry.BackoffMs != 5000 {
		t.Errorf("BackoffMs: got %d, want 5000", s.Telemetry.BackoffMs)
	}
	if s.Telemetry.LastError == "" {
		t.Error("expected LastError")
	}
	if s.Counts.DryTrips != 2 {
		t.Errorf("Counts.DryTrips: got %d, want 2", s.Counts.DryTrips)
	}
	if s.Config.DebounceMs != 3000 {
		t.Errorf("Config.DebounceMs: got %d, want 3000", s.Config.DebounceMs)
	}
	if s.Config.WetLoadPercent != 60 {
		t.Errorf("Config.WetLoadPercent: got %v, want 60", s.Config.WetLoadPercent)
	}
	if s.Pump.TimerRemaining != 0 || strings.Contains(string(data), "timer_remaining_seconds") {
		t.Error("timer_remaining_seconds should be omitted without a timed run")
	}
	if s.PumpID != "well-1" || s.Session != "s1" {
		t.Errorf("identity: got %q/%q", s.PumpID, s.Session)
	}
	// Event and Reason should be omitted
	if s.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", s.Event)
	}
	if s.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", s.Reason)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.Pump.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.Pump.State)
	}
	if parsed.Status.Pump.Detection != "UNKNOWN" {
		t.Errorf("Detection: got %q, want UNKNOWN", parsed.Status.Pump.Detection)
	}
}

func TestFormatJSONOmitsZeroTimes(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start}

	var raw map[string]map[string]interface{}
	json.Unmarshal(FormatJSON(snap), &raw)
	pump := raw["status"]["pump"].(map[string]interface{})
	if _, exists := pump["last_start"]; exists {
		t.Error("last_start should be omitted when zero")
	}
	if _, exists := pump["last_stop"]; exists {
		t.Error("last_stop should be omitted when zero")
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.Pump.State != "STOPPED" {
		t.Errorf("State: got %q, want STOPPED", parsed.Status.Pump.State)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Daemon{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(Pump{State: logic.PumpRunning, Counts: logic.EventCounts{Starts: i}}, testConfig(), telemetry.Stats{Buffered: i})
			tr.SetSinkConnected(i%2 == 0)
			tr.SetOperator("home", "run")
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}

func TestFormatJSONTimedRun(t *testing.T) {
	snap := testSnapshot()
	snap.Pump.State = logic.PumpRunning
	snap.Pump.TimerRemaining = 90 * time.Second

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got := parsed.Status.Pump.TimerRemaining; got != 90 {
		t.Errorf("TimerRemaining: got %v, want 90", got)
	}
}
