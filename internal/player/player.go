// Package player defines the contract of the platform decoder that plays a
// single source, plus a simulated implementation for tooling and tests.
package player

import "fmt"

// Status is a decoder status report.
type Status int

const (
	// StatusReady means the source can play and its duration is known.
	StatusReady Status = iota + 1
	// StatusEnded means playback reached the end of the media.
	StatusEnded
	// StatusFailed means the decoder hit a terminal decode or network error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusEnded:
		return "ended"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Event is delivered to listeners when the decoder's status changes.
type Event struct {
	Status Status
	// Err is set for StatusFailed
	Err error
}

// Listener receives decoder events.
type Listener func(Event)

// Player is an opaque decoder bound to one source.
//
// Implementations must not invoke listeners synchronously from inside
// their own methods, and must not deliver events to a listener after its
// cancel function has returned.
type Player interface {
	// Open starts loading source. It reports StatusReady when playable.
	Open(source string) error
	Play()
	Pause()
	// Seek moves to seconds; implementations clamp to the media bounds.
	Seek(seconds float64)
	// Position is the current playback position in seconds.
	Position() float64
	// Duration is zero until media headers are parsed.
	Duration() float64
	Playing() bool
	// VideoSize is the size of the currently decoded video track, or 0x0.
	VideoSize() (width, height int)
	// Observe registers l and returns a function that unregisters it.
	Observe(l Listener) (cancel func())
	// Close releases the decoder.
	Close() error
}

// Factory creates decoders. Each bind or source switch gets a new Player.
type Factory interface {
	NewPlayer() (Player, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func() (Player, error)

// NewPlayer calls f.
func (f FactoryFunc) NewPlayer() (Player, error) {
	return f()
}
