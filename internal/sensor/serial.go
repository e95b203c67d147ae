package sensor

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the UART speed of the ADC co-processor.
	DefaultBaudRate = 115200

	// DefaultStaleAfter is how old the latest reading may be before Read
	// reports it unavailable.
	DefaultStaleAfter = 50 * time.Millisecond

	// adcMax is the largest 12-bit reading.
	adcMax = 4095
)

// SerialSensor reads a stream of ADC readings from a co-processor over a
// serial port. The co-processor samples the current transformer and writes
// one decimal reading per line. Read returns the latest reading without
// blocking.
type SerialSensor struct {
	port       io.ReadCloser
	staleAfter time.Duration
	now        func() time.Time

	mu         sync.Mutex
	value      float64
	receivedAt time.Time
	readErr    error
	done       chan struct{}
}

// NewSerialSensor opens the named serial port and starts reading.
func NewSerialSensor(name string, baudRate int, staleAfter time.Duration) (*SerialSensor, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return newStreamSensor(port, staleAfter, time.Now), nil
}

func newStreamSensor(r io.ReadCloser, staleAfter time.Duration, now func() time.Time) *SerialSensor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	s := &SerialSensor{
		port:       r,
		staleAfter: staleAfter,
		now:        now,
		done:       make(chan struct{}),
	}
	go s.readLines()
	return s
}

// Read returns the latest reading, or ErrUnavailable if none arrived within
// the staleness limit.
func (s *SerialSensor) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, s.readErr)
	}
	if s.receivedAt.IsZero() || s.now().Sub(s.receivedAt) > s.staleAfter {
		return 0, ErrUnavailable
	}
	return s.value, nil
}

// Close closes the port and waits for the reader goroutine to exit.
func (s *SerialSensor) Close() error {
	err := s.port.Close()
	<-s.done
	if err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	return nil
}

func (s *SerialSensor) readLines() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := parseReading(line)
		if err != nil {
			log.Printf("sensor: skipping line %q: %v", line, err)
			continue
		}
		s.mu.Lock()
		s.value = v
		s.receivedAt = s.now()
		s.mu.Unlock()
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// parseReading parses one co-processor line: a 12-bit ADC value in decimal.
func parseReading(line string) (float64, error) {
	v, err := strconv.ParseUint(line, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid reading: %w", err)
	}
	if v > adcMax {
		return 0, fmt.Errorf("reading out of range: %d (max %d)", v, adcMax)
	}
	return float64(v), nil
}
