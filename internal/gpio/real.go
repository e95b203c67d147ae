//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// RealRelay drives the pump relay from a GPIO output line.
type RealRelay struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealRelay requests the relay pin as an output, initially de-energized.
func NewRealRelay(pin int) (*RealRelay, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RealRelay{chip: chip, line: line}, nil
}

// Set energizes or de-energizes the relay.
func (r *RealRelay) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	return nil
}

// Close drives the relay off and releases the line.
// The line is reconfigured as input with pull-down (matching Pi boot
// defaults) so the relay stays off after the process exits.
func (r *RealRelay) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("relay off: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealEncoder decodes a rotary encoder with push button from GPIO edge
// events.
type RealEncoder struct {
	chip    *gpiocdev.Chip
	clkPin  *gpiocdev.Line
	dataPin *gpiocdev.Line
	btnPin  *gpiocdev.Line

	mu  sync.Mutex // serializes edge handlers
	dec *decoder
}

// NewRealEncoder requests the encoder and button lines with edge detection.
func NewRealEncoder(pinCLK, pinData, pinBtn int) (*RealEncoder, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	e := &RealEncoder{chip: chip, dec: newDecoder()}

	e.dataPin, err = chip.RequestLine(pinData, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("request data pin %d: %w", pinData, err)
	}

	e.clkPin, err = chip.RequestLine(pinCLK,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(time.Millisecond),
		gpiocdev.WithEventHandler(e.handleClock))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("request clk pin %d: %w", pinCLK, err)
	}

	e.btnPin, err = chip.RequestLine(pinBtn,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(10*time.Millisecond),
		gpiocdev.WithEventHandler(e.handleButton))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pinBtn, err)
	}

	return e, nil
}

func (e *RealEncoder) handleClock(evt gpiocdev.LineEvent) {
	data, err := e.dataPin.Value()
	if err != nil {
		return
	}
	e.mu.Lock()
	e.dec.clockFalling(data)
	e.mu.Unlock()
}

func (e *RealEncoder) handleButton(evt gpiocdev.LineEvent) {
	// Active low: falling edge is a press.
	pressed := evt.Type == gpiocdev.LineEventFallingEdge
	e.mu.Lock()
	e.dec.button(pressed, evt.Timestamp)
	e.mu.Unlock()
}

// Events returns the decoded event channel.
func (e *RealEncoder) Events() <-chan logic.InputEvent {
	return e.dec.out
}

// Close releases GPIO resources.
func (e *RealEncoder) Close() error {
	var errs []error

	for name, l := range map[string]*gpiocdev.Line{"clk": e.clkPin, "data": e.dataPin, "button": e.btnPin} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if e.chip != nil {
		if err := e.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
