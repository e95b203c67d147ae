package sensor

import "errors"

// FakeSensor is a test double that returns scripted readings.
type FakeSensor struct {
	// Values contains scripted readings. Each call to Read() consumes the
	// next value; once exhausted the last value repeats.
	Values []float64

	// Source, if set, takes precedence over Values and is called with the
	// zero-based read index.
	Source func(n int) (float64, error)

	// ReadError, if set, will be returned by Read().
	ReadError error

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSensor creates a FakeSensor with the given values.
func NewFakeSensor(values ...float64) *FakeSensor {
	return &FakeSensor{Values: values}
}

// Read returns the next scripted value.
func (f *FakeSensor) Read() (float64, error) {
	n := f.Reads
	f.Reads++

	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if f.Source != nil {
		return f.Source(n)
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	if n >= len(f.Values) {
		n = len(f.Values) - 1
	}
	return f.Values[n], nil
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.Closed = true
	return nil
}
