package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrCommandRejected is returned when a command is not allowed in the
// current state (start during cooldown, start while faulted).
var ErrCommandRejected = errors.New("command rejected")

// Controller is the pump state machine and the only writer of the relay.
// The relay is written before a state is committed, so the state never
// claims RUNNING with the relay off or IDLE/STOPPED/FAULT with it on.
// The one exception is a relay that fails to de-energize, which leaves the
// controller in FAULT with the relay state unknown.
type Controller struct {
	relay  Relay
	settle time.Duration

	state        PumpState
	changedAt    time.Time
	lastStart    time.Time // entered STARTING
	runningSince time.Time
	lastStop     time.Time
	deadline     time.Time // timed run end, zero for an open-ended run
	hasStopped   bool
	relayOn      bool
	relayErr     error
	counts       EventCounts
}

// StepInput is the snapshot the controller acts on once per tick.
type StepInput struct {
	Time        time.Time
	Detection   DetectionState
	Config      Config
	SensorFault bool
}

// NewController creates a controller in IDLE and forces the relay off.
// settle is the fixed delay between STARTING and RUNNING.
func NewController(relay Relay, settle time.Duration, now time.Time) (*Controller, error) {
	c := &Controller{
		relay:     relay,
		settle:    settle,
		state:     PumpIdle,
		changedAt: now,
	}
	if err := relay.Set(false); err != nil {
		return nil, fmt.Errorf("force relay off: %w", err)
	}
	return c, nil
}

// Command applies a manual operator command and returns the transitions it
// caused. Redundant commands (stop while idle, start while running) are
// no-ops.
func (c *Controller) Command(cmd Command, now time.Time, cfg Config) ([]Transition, error) {
	switch cmd {
	case CommandStart:
		return c.start(now, cfg)
	case CommandStop:
		if c.state == PumpStarting || c.state == PumpRunning {
			return c.stop(now, ReasonCommand, nil), nil
		}
		return nil, nil
	case CommandReset:
		if c.state != PumpFault {
			return nil, nil
		}
		return c.moveTo(PumpIdle, now, ReasonCommand, nil), nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func (c *Controller) start(now time.Time, cfg Config) ([]Transition, error) {
	switch c.state {
	case PumpStarting, PumpRunning:
		return nil, nil
	case PumpFault:
		c.counts.RejectedStarts++
		return nil, fmt.Errorf("%w: pump is faulted, reset required", ErrCommandRejected)
	}

	if remaining := c.CooldownRemaining(now, cfg); remaining > 0 {
		c.counts.RejectedStarts++
		return nil, fmt.Errorf("%w: cooldown has %v remaining", ErrCommandRejected, remaining)
	}

	var out []Transition
	if c.state == PumpStopped {
		out = c.moveTo(PumpIdle, now, ReasonCommand, out)
	}
	out = c.moveTo(PumpStarting, now, ReasonCommand, out)
	if c.state == PumpStarting {
		c.lastStart = now
		c.counts.Starts++
	}
	return out, nil
}

// StartTimed starts the pump for d, after which Step stops it with
// ReasonTimer. On a pump that is already starting or running it sets the
// remaining run time to d. The usual start rules apply otherwise.
func (c *Controller) StartTimed(now time.Time, d time.Duration, cfg Config) ([]Transition, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: run time must be positive, got %v", ErrCommandRejected, d)
	}
	if c.state.Energized() {
		c.deadline = now.Add(d)
		return nil, nil
	}
	out, err := c.start(now, cfg)
	if err != nil {
		return out, err
	}
	if c.state == PumpStarting {
		c.deadline = now.Add(d)
	}
	return out, nil
}

// Step advances timer- and detection-driven transitions.
func (c *Controller) Step(in StepInput) []Transition {
	if in.SensorFault && c.state != PumpFault {
		return c.Fault(in.Time, ReasonSensorFault)
	}

	if c.state.Energized() && !c.deadline.IsZero() && !in.Time.Before(c.deadline) {
		return c.stop(in.Time, ReasonTimer, nil)
	}

	switch c.state {
	case PumpStarting:
		if in.Time.Sub(c.lastStart) >= c.settle {
			out := c.moveTo(PumpRunning, in.Time, ReasonSettled, nil)
			if c.state == PumpRunning {
				c.runningSince = in.Time
			}
			return out
		}

	case PumpRunning:
		if in.Detection == DetectionDry && in.Time.Sub(c.runningSince) >= in.Config.MinRunDuration {
			c.counts.DryTrips++
			return c.stop(in.Time, ReasonDryRun, nil)
		}
	}
	return nil
}

// Fault forces the relay off and enters FAULT from any state.
func (c *Controller) Fault(now time.Time, reason Reason) []Transition {
	if c.state == PumpFault {
		return nil
	}
	wasOn := c.relayOn
	out := c.moveTo(PumpFault, now, reason, nil)
	if wasOn && !c.relayOn {
		c.lastStop = now
		c.hasStopped = true
	}
	return out
}

// Shutdown de-energizes the relay for daemon teardown.
func (c *Controller) Shutdown(now time.Time) ([]Transition, error) {
	var out []Transition
	if c.state.Energized() {
		out = c.stop(now, ReasonShutdown, out)
	}
	if err := c.relay.Set(false); err != nil {
		return out, fmt.Errorf("relay off: %w", err)
	}
	c.relayOn = false
	return out, nil
}

func (c *Controller) stop(now time.Time, reason Reason, out []Transition) []Transition {
	out = c.moveTo(PumpStopping, now, reason, out)
	if c.state != PumpStopping {
		return out
	}
	out = c.moveTo(PumpStopped, now, reason, out)
	c.lastStop = now
	c.hasStopped = true
	c.counts.Stops++
	return out
}

// moveTo writes the relay for the target state, then commits the state.
// A relay error diverts the transition to FAULT.
func (c *Controller) moveTo(to PumpState, now time.Time, reason Reason, out []Transition) []Transition {
	want := to.Energized()
	if want != c.relayOn {
		if err := c.relay.Set(want); err != nil {
			c.relayErr = err
			if want {
				// Never leave a half-started pump behind.
				if c.relay.Set(false) == nil {
					c.relayOn = false
				}
			}
			if c.state == PumpFault {
				return out
			}
			c.counts.Faults++
			out = append(out, Transition{Timestamp: now, From: c.state, To: PumpFault, Reason: ReasonRelayFault})
			c.state = PumpFault
			c.changedAt = now
			c.deadline = time.Time{}
			return out
		}
		c.relayOn = want
	}

	if to == PumpFault {
		c.counts.Faults++
	}
	out = append(out, Transition{Timestamp: now, From: c.state, To: to, Reason: reason})
	c.state = to
	c.changedAt = now
	if !to.Energized() {
		c.deadline = time.Time{}
	}
	return out
}

// CooldownRemaining returns how long until a start is allowed again.
func (c *Controller) CooldownRemaining(now time.Time, cfg Config) time.Duration {
	if !c.hasStopped {
		return 0
	}
	remaining := cfg.CooldownDuration - now.Sub(c.lastStop)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimerRemaining returns how long a timed run has left, zero when the pump
// is not on a timed run.
func (c *Controller) TimerRemaining(now time.Time) time.Duration {
	if c.deadline.IsZero() {
		return 0
	}
	if remaining := c.deadline.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// State returns the current pump state.
func (c *Controller) State() PumpState {
	return c.state
}

// ChangedAt returns the time of the last transition.
func (c *Controller) ChangedAt() time.Time {
	return c.changedAt
}

// LastStart returns when the pump last entered STARTING (zero if never).
func (c *Controller) LastStart() time.Time {
	return c.lastStart
}

// LastStop returns when the relay was last de-energized by a stop or fault
// (zero if never).
func (c *Controller) LastStop() time.Time {
	return c.lastStop
}

// RunningSince returns when the pump last entered RUNNING.
func (c *Controller) RunningSince() time.Time {
	return c.runningSince
}

// RelayOn reports the last successfully written relay state.
func (c *Controller) RelayOn() bool {
	return c.relayOn
}

// RelayErr returns the last relay write error, if any.
func (c *Controller) RelayErr() error {
	return c.relayErr
}

// Counts returns a copy of the event counters.
func (c *Controller) Counts() EventCounts {
	return c.counts
}
