package operator

import (
	"log"
	"sync"
)

// Display renders up to four characters at a brightness of 0 to 7.
type Display interface {
	Render(digits string, brightness uint8) error
}

// MaxBrightness is the brightest display level.
const MaxBrightness uint8 = 7

// LogDisplay writes frames to the log. Used when no display is attached.
type LogDisplay struct{}

// Render logs the frame.
func (LogDisplay) Render(digits string, brightness uint8) error {
	log.Printf("display: [%4s] brightness=%d", digits, brightness)
	return nil
}

// Frame is one rendered display state.
type Frame struct {
	Digits     string
	Brightness uint8
}

// FakeDisplay records rendered frames for test assertions.
type FakeDisplay struct {
	mu sync.Mutex

	// Frames holds every frame rendered, oldest first.
	Frames []Frame

	// Err, if set, is returned by Render and the frame is not recorded.
	Err error
}

// Render records the frame.
func (f *FakeDisplay) Render(digits string, brightness uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Frames = append(f.Frames, Frame{Digits: digits, Brightness: brightness})
	return nil
}

// Last returns the most recent frame, or a zero Frame if none.
func (f *FakeDisplay) Last() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Frames) == 0 {
		return Frame{}
	}
	return f.Frames[len(f.Frames)-1]
}

// Count returns the number of frames rendered.
func (f *FakeDisplay) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Frames)
}
