// Package status provides a thread-safe status tracker for the pump-guard daemon.
// It is written by the control loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/telemetry"
)

// Daemon contains static daemon settings for display.
type Daemon struct {
	PumpID   string
	Session  string
	Sink     string
	Target   string // broker or URL the sink delivers to
	HTTPAddr string
	TickMs   int64
	WindowMs int64
	SettleMs int64
}

// Pump is the control pipeline state at the end of a tick.
type Pump struct {
	State             logic.PumpState
	StateSince        time.Time
	Detection         logic.DetectionState
	CurrentAmps       float64
	RelayOn           bool
	SensorFaulted     bool
	LastStart         time.Time
	LastStop          time.Time
	CooldownRemaining time.Duration
	TimerRemaining    time.Duration
	Counts            logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pump          Pump
	Config        logic.Config
	Telemetry     telemetry.Stats
	SinkConnected bool
	OperatorMode  string
	Display       string
	StartTime     time.Time
	Now           time.Time
	Daemon        Daemon
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and daemon settings.
func NewTracker(startTime time.Time, d Daemon) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Daemon:    d,
			Pump:      Pump{State: logic.PumpIdle, Detection: logic.DetectionWet},
		},
	}
}

// Update replaces the pipeline state. Called from the control loop.
func (t *Tracker) Update(p Pump, cfg logic.Config, tel telemetry.Stats) {
	t.mu.Lock()
	t.snap.Pump = p
	t.snap.Config = cfg
	t.snap.Telemetry = tel
	t.mu.Unlock()
}

// SetSinkConnected sets the telemetry sink connection status.
func (t *Tracker) SetSinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.SinkConnected = connected
	t.mu.Unlock()
}

// SetOperator records the operator screen and the digits last shown.
func (t *Tracker) SetOperator(mode, display string) {
	t.mu.Lock()
	t.snap.OperatorMode = mode
	t.snap.Display = display
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
