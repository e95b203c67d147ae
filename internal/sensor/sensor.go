// Package sensor samples the pump current sensor behind a narrow capability
// interface. The serial implementation talks to an ADC co-processor.
// The fake implementation allows testing without hardware.
package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
)

// FaultThreshold is the number of consecutive unavailable samples that
// signal a sensor fault.
const FaultThreshold = 3

var (
	// ErrUnavailable is returned by sensors that have no fresh reading.
	ErrUnavailable = errors.New("sensor: reading unavailable")

	// ErrSensorFault reports that the sensor stayed unreadable for
	// FaultThreshold consecutive samples.
	ErrSensorFault = errors.New("sensor fault")
)

// CurrentSensor reads raw current-sensor amplitudes.
type CurrentSensor interface {
	// Read returns one raw amplitude. It must not block longer than a
	// sampling period.
	Read() (float64, error)

	// Close releases sensor resources.
	Close() error
}

// Sampler turns sensor reads into RawSamples. Read errors never propagate:
// they produce an unavailable sample and count towards a sensor fault.
type Sampler struct {
	sensor      CurrentSensor
	consecutive int
	unavailable int
	lastErr     error
}

// NewSampler creates a Sampler polling the given sensor.
func NewSampler(s CurrentSensor) *Sampler {
	return &Sampler{sensor: s}
}

// Next performs one hardware read stamped with now.
func (s *Sampler) Next(now time.Time) logic.RawSample {
	v, err := s.sensor.Read()
	if err != nil {
		s.consecutive++
		s.unavailable++
		s.lastErr = err
		return logic.RawSample{Time: now}
	}
	s.consecutive = 0
	return logic.RawSample{Time: now, Value: v, Valid: true}
}

// Faulted reports whether the last FaultThreshold samples were unavailable.
func (s *Sampler) Faulted() bool {
	return s.consecutive >= FaultThreshold
}

// Err returns ErrSensorFault wrapping the last read error while faulted,
// nil otherwise.
func (s *Sampler) Err() error {
	if !s.Faulted() {
		return nil
	}
	return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrSensorFault, s.consecutive, s.lastErr)
}

// Unavailable returns the total number of unavailable samples since startup.
func (s *Sampler) Unavailable() int {
	return s.unavailable
}
