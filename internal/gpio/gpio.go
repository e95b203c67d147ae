// Package gpio provides the relay output and encoder/button input with
// hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/pump-guard/internal/logic"
)

// EventSource delivers decoded encoder and button events.
type EventSource interface {
	// Events returns the channel of decoded input events. Events are
	// dropped rather than blocking the hardware callback when it is full.
	Events() <-chan logic.InputEvent

	// Close releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering)
const (
	DefaultPinRelay = 25
	DefaultPinCLK   = 18
	DefaultPinData  = 19
	DefaultPinBtn   = 4
)

const (
	// LongPressDuration is the minimum hold time for a LONG_PRESS.
	LongPressDuration = time.Second

	// eventBuffer bounds queued input events between ticks.
	eventBuffer = 16
)

// decoder turns raw line edges into input events. Not safe for concurrent
// use; callers serialize edge delivery.
type decoder struct {
	out       chan logic.InputEvent
	pressedAt time.Duration
	pressed   bool
	dropped   int
}

func newDecoder() *decoder {
	return &decoder{out: make(chan logic.InputEvent, eventBuffer)}
}

// clockFalling handles a falling edge on the encoder CLK line.
// The DATA level at that moment gives the direction.
func (d *decoder) clockFalling(data int) {
	if data != 0 {
		d.emit(logic.RotateRight)
		return
	}
	d.emit(logic.RotateLeft)
}

// button handles a button edge; the button is active low.
// ts is the kernel event timestamp.
func (d *decoder) button(pressed bool, ts time.Duration) {
	if pressed {
		d.pressed = true
		d.pressedAt = ts
		return
	}
	if !d.pressed {
		return
	}
	d.pressed = false
	if ts-d.pressedAt >= LongPressDuration {
		d.emit(logic.LongPress)
		return
	}
	d.emit(logic.Click)
}

func (d *decoder) emit(ev logic.InputEvent) {
	select {
	case d.out <- ev:
	default:
		d.dropped++
	}
}
