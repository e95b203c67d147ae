package logic

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MinSamplesPerCycle is the lowest sampling density that keeps the RMS of a
// mains-frequency waveform stable. Near the Nyquist rate the samples land on
// fixed phases of the wave and the estimate depends on where they fall.
const MinSamplesPerCycle = 10

// ErrSampling is returned by CheckSampling.
var ErrSampling = errors.New("invalid sampling")

// Estimator turns raw samples into calibrated RMS current, one value per
// full window. The window is allocated once and never grows.
type Estimator struct {
	cal      Calibration
	window   []float64 // calibrated amps
	count    int
	last     float64 // previous valid calibrated value
	spikes   int
	replaced int
}

// NewEstimator creates an estimator averaging over windowSize samples.
func NewEstimator(cal Calibration, windowSize int) *Estimator {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &Estimator{
		cal:    cal,
		window: make([]float64, windowSize),
	}
}

// Process adds one sample. It returns a Current and true when the sample
// completes a window; otherwise it returns false and never blocks.
func (e *Estimator) Process(s RawSample) (Current, bool) {
	v := e.last
	if s.Valid {
		c := (s.Value - e.cal.ZeroOffset) * e.cal.Scale
		if e.cal.Ceiling > 0 && math.Abs(c) > e.cal.Ceiling {
			e.spikes++
		} else {
			v = c
			e.last = c
		}
	} else {
		e.replaced++
	}

	e.window[e.count] = v
	e.count++
	if e.count < len(e.window) {
		return Current{}, false
	}
	e.count = 0

	var sum float64
	for _, x := range e.window {
		sum += x * x
	}
	return Current{
		Time: s.Time,
		Amps: math.Sqrt(sum / float64(len(e.window))),
	}, true
}

// WindowSize returns the number of samples per emitted Current.
func (e *Estimator) WindowSize() int {
	return len(e.window)
}

// Rejected returns how many samples were replaced because they exceeded
// the ceiling (spikes) or were unavailable.
func (e *Estimator) Rejected() (spikes, unavailable int) {
	return e.spikes, e.replaced
}

// WindowSamples returns the number of samples needed to cover window at the
// given sample period, with a minimum of one.
func WindowSamples(window, period time.Duration) int {
	if period <= 0 || window <= period {
		return 1
	}
	return int(window / period)
}

// CheckSampling verifies that sampling every period over window resolves a
// mainsHz waveform: at least MinSamplesPerCycle samples per cycle and at
// least one whole cycle per window.
func CheckSampling(window, period time.Duration, mainsHz float64) error {
	if period <= 0 || window <= 0 || mainsHz <= 0 {
		return fmt.Errorf("%w: window %v, period %v and mains %vHz must be positive", ErrSampling, window, period, mainsHz)
	}
	cycle := time.Duration(float64(time.Second) / mainsHz)
	if perCycle := float64(cycle) / float64(period); perCycle < MinSamplesPerCycle {
		return fmt.Errorf("%w: period %v gives %.1f samples per %vHz cycle, need %d",
			ErrSampling, period, perCycle, mainsHz, MinSamplesPerCycle)
	}
	if window < cycle {
		return fmt.Errorf("%w: window %v is shorter than one %vHz cycle (%v)", ErrSampling, window, mainsHz, cycle)
	}
	return nil
}
