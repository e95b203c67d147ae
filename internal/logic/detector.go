package logic

import "time"

// Detector classifies the calibrated current stream as wet, suspect or dry.
// It is the only writer of DetectionState.
type Detector struct {
	state      DetectionState
	changedAt  time.Time
	belowSince time.Time // start of the current at-or-below-threshold run; zero if broken
}

// NewDetector creates a detector in the WET state.
func NewDetector(now time.Time) *Detector {
	return &Detector{
		state:     DetectionWet,
		changedAt: now,
	}
}

// Process feeds one calibrated current value and returns the new state plus
// whether it changed. Thresholds are taken from cfg on every call so config
// updates apply at the next window.
func (d *Detector) Process(c Current, cfg Config) (DetectionState, bool) {
	prev := d.state
	threshold := cfg.DryThresholdAmps

	switch d.state {
	case DetectionWet:
		if c.Amps < threshold {
			d.setState(DetectionSuspect, c.Time)
			d.belowSince = c.Time
			d.checkDry(c.Time, cfg.DebounceDuration)
		}

	case DetectionSuspect:
		switch {
		case c.Amps > threshold+cfg.HysteresisMarginAmps:
			d.setState(DetectionWet, c.Time)
			d.belowSince = time.Time{}
		case c.Amps > threshold:
			// Inside the hysteresis band: still suspect, but the run is broken.
			d.belowSince = time.Time{}
		default:
			if d.belowSince.IsZero() {
				d.belowSince = c.Time
			}
			d.checkDry(c.Time, cfg.DebounceDuration)
		}

	case DetectionDry:
		// Latched until Reset.
	}

	return d.state, d.state != prev
}

func (d *Detector) checkDry(now time.Time, debounce time.Duration) {
	if now.Sub(d.belowSince) >= debounce {
		d.setState(DetectionDry, now)
	}
}

func (d *Detector) setState(s DetectionState, now time.Time) {
	d.state = s
	d.changedAt = now
}

// Reset returns the detector to WET. Called when the pump (re)enters RUNNING.
func (d *Detector) Reset(now time.Time) {
	d.setState(DetectionWet, now)
	d.belowSince = time.Time{}
}

// State returns the current detection state.
func (d *Detector) State() DetectionState {
	return d.state
}

// ChangedAt returns the time of the last transition.
func (d *Detector) ChangedAt() time.Time {
	return d.changedAt
}
