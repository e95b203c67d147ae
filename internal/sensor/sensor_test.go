package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestSamplerValidSample(t *testing.T) {
	s := NewSampler(NewFakeSensor(2048))

	got := s.Next(t0)
	assert.True(t, got.Valid)
	assert.Equal(t, 2048.0, got.Value)
	assert.True(t, got.Time.Equal(t0))
	assert.False(t, s.Faulted())
	assert.NoError(t, s.Err())
}

func TestSamplerErrorYieldsUnavailable(t *testing.T) {
	f := NewFakeSensor()
	f.ReadError = errors.New("i2c nack")
	s := NewSampler(f)

	got := s.Next(t0)
	assert.False(t, got.Valid)
	assert.True(t, got.Time.Equal(t0))
	assert.Equal(t, 1, s.Unavailable())
}

func TestSamplerFaultAfterThreeConsecutive(t *testing.T) {
	f := NewFakeSensor(100)
	f.ReadError = errors.New("i2c nack")
	s := NewSampler(f)

	for i := 0; i < FaultThreshold-1; i++ {
		s.Next(t0.Add(time.Duration(i) * time.Millisecond))
		require.False(t, s.Faulted(), "faulted after %d failures", i+1)
	}
	s.Next(t0.Add(time.Second))
	assert.True(t, s.Faulted())
	assert.ErrorIs(t, s.Err(), ErrSensorFault)

	// A good read clears the condition.
	f.ReadError = nil
	s.Next(t0.Add(2 * time.Second))
	assert.False(t, s.Faulted())
}

func TestSamplerInterleavedFailuresDoNotFault(t *testing.T) {
	f := &FakeSensor{Source: func(n int) (float64, error) {
		if n%3 == 2 {
			return 1, nil
		}
		return 0, ErrUnavailable
	}}
	s := NewSampler(f)
	for i := 0; i < 30; i++ {
		s.Next(t0)
		require.False(t, s.Faulted(), "read %d", i)
	}
	assert.Equal(t, 20, s.Unavailable())
}

func TestFakeSensorRepeatsLast(t *testing.T) {
	f := NewFakeSensor(1, 2)
	for _, want := range []float64{1, 2, 2, 2} {
		got, err := f.Read()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 4, f.Reads)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}

func TestFakeSensorNoValues(t *testing.T) {
	_, err := NewFakeSensor().Read()
	assert.Error(t, err)
}
