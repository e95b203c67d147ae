// Package logic contains the pure control logic for the pump guard:
// current estimation, dry-run detection and the pump state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// DetectionState is the dry-run classification of the current stream.
type DetectionState string

const (
	DetectionWet     DetectionState = "WET"
	DetectionSuspect DetectionState = "SUSPECT"
	DetectionDry     DetectionState = "DRY"
)

// Code returns the numeric encoding used by telemetry sinks.
func (s DetectionState) Code() int {
	switch s {
	case DetectionWet:
		return 0
	case DetectionSuspect:
		return 1
	case DetectionDry:
		return 2
	}
	return -1
}

// PumpState is the state of the pump controller.
type PumpState string

const (
	PumpIdle     PumpState = "IDLE"
	PumpStarting PumpState = "STARTING"
	PumpRunning  PumpState = "RUNNING"
	PumpStopping PumpState = "STOPPING"
	PumpStopped  PumpState = "STOPPED"
	PumpFault    PumpState = "FAULT"
)

// Code returns the numeric encoding used by telemetry sinks.
func (s PumpState) Code() int {
	switch s {
	case PumpIdle:
		return 0
	case PumpStarting:
		return 1
	case PumpRunning:
		return 2
	case PumpStopping:
		return 3
	case PumpStopped:
		return 4
	case PumpFault:
		return 5
	}
	return -1
}

// Energized reports whether the relay must be on while in this state.
// STARTING and RUNNING require it; STOPPING, STOPPED, IDLE and FAULT forbid it.
func (s PumpState) Energized() bool {
	return s == PumpStarting || s == PumpRunning
}

// RawSample is a single timestamped sensor reading.
// Valid is false for the "unavailable" sentinel produced on read errors.
type RawSample struct {
	Time  time.Time
	Value float64
	Valid bool
}

// Current is a calibrated RMS current estimate over one averaging window.
// Time is the timestamp of the last sample in the window.
type Current struct {
	Time time.Time
	Amps float64
}

// Calibration holds the static sensor constants loaded at startup.
type Calibration struct {
	ZeroOffset float64 // raw value at zero current
	Scale      float64 // amps per raw unit
	Ceiling    float64 // hard physical limit in amps; larger magnitudes are spikes
}

// Config holds the runtime-tunable parameters.
type Config struct {
	DryThresholdAmps     float64
	DebounceDuration     time.Duration
	HysteresisMarginAmps float64
	MinRunDuration       time.Duration
	CooldownDuration     time.Duration
	TelemetryInterval    time.Duration

	// WetLoadPercent is the share of the captured wet running current that
	// a calibration capture sets as the dry threshold.
	WetLoadPercent float64
}

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the structural constraints on every field.
func (c Config) Validate() error {
	switch {
	case c.DryThresholdAmps <= 0:
		return fmt.Errorf("%w: dry_threshold_amps must be > 0, got %v", ErrInvalidConfig, c.DryThresholdAmps)
	case c.DebounceDuration < 0:
		return fmt.Errorf("%w: debounce_duration must be >= 0, got %v", ErrInvalidConfig, c.DebounceDuration)
	case c.HysteresisMarginAmps < 0:
		return fmt.Errorf("%w: hysteresis_margin_amps must be >= 0, got %v", ErrInvalidConfig, c.HysteresisMarginAmps)
	case c.HysteresisMarginAmps >= c.DryThresholdAmps:
		return fmt.Errorf("%w: hysteresis_margin_amps (%v) must be below dry_threshold_amps (%v)",
			ErrInvalidConfig, c.HysteresisMarginAmps, c.DryThresholdAmps)
	case c.MinRunDuration < 0:
		return fmt.Errorf("%w: min_run_duration must be >= 0, got %v", ErrInvalidConfig, c.MinRunDuration)
	case c.CooldownDuration < 0:
		return fmt.Errorf("%w: cooldown_duration must be >= 0, got %v", ErrInvalidConfig, c.CooldownDuration)
	case c.TelemetryInterval <= 0:
		return fmt.Errorf("%w: telemetry_interval must be > 0, got %v", ErrInvalidConfig, c.TelemetryInterval)
	case c.WetLoadPercent <= 0 || c.WetLoadPercent > 100:
		return fmt.Errorf("%w: wet_load_percent must be in (0, 100], got %v", ErrInvalidConfig, c.WetLoadPercent)
	}
	return nil
}

// Command is a manual operator request to the pump controller.
type Command string

const (
	CommandStart Command = "START"
	CommandStop  Command = "STOP"
	CommandReset Command = "RESET"
)

// InputEvent is a decoded encoder/button event.
type InputEvent string

const (
	RotateLeft  InputEvent = "ROTATE_LEFT"
	RotateRight InputEvent = "ROTATE_RIGHT"
	Click       InputEvent = "CLICK"
	LongPress   InputEvent = "LONG_PRESS"
)

// Reason explains why a pump transition happened.
type Reason string

const (
	ReasonCommand     Reason = "COMMAND"
	ReasonSettled     Reason = "SETTLED"
	ReasonDryRun      Reason = "DRY_RUN"
	ReasonSensorFault Reason = "SENSOR_FAULT"
	ReasonRelayFault  Reason = "RELAY_FAULT"
	ReasonShutdown    Reason = "SHUTDOWN"
	ReasonTimer       Reason = "TIMER"
)

// Transition records a pump state change to be logged and published.
type Transition struct {
	Timestamp time.Time
	From      PumpState
	To        PumpState
	Reason    Reason
}

// Relay is the write-only pump power output.
type Relay interface {
	// Set energizes (true) or de-energizes (false) the relay.
	Set(on bool) error
}

// EventCounts tracks notable control events since startup.
type EventCounts struct {
	Starts         int
	Stops          int
	DryTrips       int
	Faults         int
	RejectedStarts int
}
