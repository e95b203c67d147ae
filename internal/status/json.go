package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	PumpID        string        `json:"pump_id"`
	Session       string        `json:"session"`
	Pump          PumpJSON      `json:"pump"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Telemetry     TelemetryJSON `json:"telemetry"`
	Operator      OperatorJSON  `json:"operator"`
	Counts        CountsJSON    `json:"event_counts"`
	Config        ConfigJSON    `json:"config"`
	Daemon        DaemonJSON    `json:"daemon"`
}

// PumpJSON is the JSON representation of the control pipeline state.
type PumpJSON struct {
	State             string  `json:"state"`
	StateSince        string  `json:"state_since"`
	Detection         string  `json:"detection"`
	CurrentAmps       float64 `json:"current_amps"`
	RelayOn           bool    `json:"relay_on"`
	SensorFaulted     bool    `json:"sensor_faulted"`
	LastStart         string  `json:"last_start,omitempty"`
	LastStop          string  `json:"last_stop,omitempty"`
	CooldownRemaining float64 `json:"cooldown_remaining_seconds"`
	TimerRemaining    float64 `json:"timer_remaining_seconds,omitempty"`
}

// TelemetryJSON reports telemetry delivery state.
type TelemetryJSON struct {
	Sink        string `json:"sink"`
	Target      string `json:"target"`
	Connected   bool   `json:"connected"`
	Buffered    int    `json:"buffered"`
	Capacity    int    `json:"capacity"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Failures    uint64 `json:"failures"`
	InFlight    bool   `json:"in_flight"`
	BackoffMs   int64  `json:"backoff_ms"`
	LastError   string `json:"last_error,omitempty"`
	LastSuccess string `json:"last_success,omitempty"`
}

// OperatorJSON reports the local control surface.
type OperatorJSON struct {
	Mode    string `json:"mode"`
	Display string `json:"display"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Starts         int `json:"starts"`
	Stops          int `json:"stops"`
	DryTrips       int `json:"dry_trips"`
	Faults         int `json:"faults"`
	RejectedStarts int `json:"rejected_starts"`
}

// ConfigJSON is the JSON representation of the runtime configuration.
type ConfigJSON struct {
	DryThresholdAmps     float64 `json:"dry_threshold_amps"`
	DebounceMs           int64   `json:"debounce_ms"`
	HysteresisMarginAmps float64 `json:"hysteresis_margin_amps"`
	MinRunMs             int64   `json:"min_run_ms"`
	CooldownMs           int64   `json:"cooldown_ms"`
	TelemetryIntervalMs  int64   `json:"telemetry_interval_ms"`
	WetLoadPercent       float64 `json:"wet_load_percent"`
}

// DaemonJSON is the JSON representation of static daemon settings.
type DaemonJSON struct {
	TickMs   int64  `json:"tick_ms"`
	WindowMs int64  `json:"window_ms"`
	SettleMs int64  `json:"settle_ms"`
	HTTPAddr string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Pump.State)
	if state == "" {
		state = "UNKNOWN"
	}
	detection := string(snap.Pump.Detection)
	if detection == "" {
		detection = "UNKNOWN"
	}

	inner := StatusInner{
		PumpID:  snap.Daemon.PumpID,
		Session: snap.Daemon.Session,
		Pump: PumpJSON{
			State:             state,
			StateSince:        formatTime(snap.Pump.StateSince),
			Detection:         detection,
			CurrentAmps:       snap.Pump.CurrentAmps,
			RelayOn:           snap.Pump.RelayOn,
			SensorFaulted:     snap.Pump.SensorFaulted,
			LastStart:         formatTime(snap.Pump.LastStart),
			LastStop:          formatTime(snap.Pump.LastStop),
			CooldownRemaining: snap.Pump.CooldownRemaining.Seconds(),
			TimerRemaining:    snap.Pump.TimerRemaining.Seconds(),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Telemetry: TelemetryJSON{
			Sink:        snap.Daemon.Sink,
			Target:      snap.Daemon.Target,
			Connected:   snap.SinkConnected,
			Buffered:    snap.Telemetry.Buffered,
			Capacity:    snap.Telemetry.Capacity,
			Delivered:   snap.Telemetry.Delivered,
			Dropped:     snap.Telemetry.Dropped,
			Failures:    snap.Telemetry.Failures,
			InFlight:    snap.Telemetry.InFlight,
			BackoffMs:   snap.Telemetry.Backoff.Milliseconds(),
			LastSuccess: formatTime(snap.Telemetry.LastSuccess),
		},
		Operator: OperatorJSON{Mode: snap.OperatorMode, Display: snap.Display},
		Counts: CountsJSON{
			Starts:         snap.Pump.Counts.Starts,
			Stops:          snap.Pump.Counts.Stops,
			DryTrips:       snap.Pump.Counts.DryTrips,
			Faults:         snap.Pump.Counts.Faults,
			RejectedStarts: snap.Pump.Counts.RejectedStarts,
		},
		Config: ConfigJSON{
			DryThresholdAmps:     snap.Config.DryThresholdAmps,
			DebounceMs:           snap.Config.DebounceDuration.Milliseconds(),
			HysteresisMarginAmps: snap.Config.HysteresisMarginAmps,
			MinRunMs:             snap.Config.MinRunDuration.Milliseconds(),
			CooldownMs:           snap.Config.CooldownDuration.Milliseconds(),
			TelemetryIntervalMs:  snap.Config.TelemetryInterval.Milliseconds(),
			WetLoadPercent:       snap.Config.WetLoadPercent,
		},
		Daemon: DaemonJSON{
			TickMs:   snap.Daemon.TickMs,
			WindowMs: snap.Daemon.WindowMs,
			SettleMs: snap.Daemon.SettleMs,
			HTTPAddr: snap.Daemon.HTTPAddr,
		},
	}
	if snap.Telemetry.LastError != nil {
		inner.Telemetry.LastError = snap.Telemetry.LastError.Error()
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
