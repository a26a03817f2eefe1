package player

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Clip describes what a simulated source decodes to.
type Clip struct {
	Duration float64
	Width    int
	Height   int
	// Err, if set, is reported as a decode failure instead of readiness
	Err error
}

// DefaultClip is used for sources the factory has no clip for.
var DefaultClip = Clip{Duration: 60, Width: 1280, Height: 720}

// ErrClosed is returned by Open on a closed simulated player.
var ErrClosed = errors.New("player closed")

// SimulatedFactory creates simulated players.
//
// With Tick set, each player drives itself: it becomes ready on the first
// tick after Open and advances its clock by Tick on every tick while
// playing. With Tick zero the caller drives it through Ready, Advance and
// Fail.
type SimulatedFactory struct {
	Clips map[string]Clip
	Tick  time.Duration

	mu      sync.Mutex
	players []*Simulated
}

// NewPlayer creates a simulated player.
func (f *SimulatedFactory) NewPlayer() (Player, error) {
	p := &Simulated{
		clips:     f.Clips,
		tick:      f.Tick,
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}

	f.mu.Lock()
	f.players = append(f.players, p)
	f.mu.Unlock()

	return p, nil
}

// Players returns every player created so far, oldest first.
func (f *SimulatedFactory) Players() []*Simulated {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Simulated, len(f.players))
	copy(out, f.players)
	return out
}

// Last returns the most recently created player, or nil.
func (f *SimulatedFactory) Last() *Simulated {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.players) == 0 {
		return nil
	}
	return f.players[len(f.players)-1]
}

// Simulated is an in-memory decoder with a controllable clock.
type Simulated struct {
	clips map[string]Clip
	tick  time.Duration

	mu       sync.Mutex
	source   string
	clip     Clip
	ready    bool
	failed   bool
	position float64
	playing  bool
	closed   bool
	width    int
	height   int

	// emitMu serializes delivery against listener cancellation.
	emitMu    sync.Mutex
	listeners map[int]Listener
	nextID    int

	done chan struct{}
	wg   sync.WaitGroup
}

// Open starts loading source.
func (p *Simulated) Open(source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.source != "" {
		return fmt.Errorf("player already opened %s", p.source)
	}

	clip, ok := p.clips[source]
	if !ok {
		clip = DefaultClip
	}
	p.source = source
	p.clip = clip

	if p.tick > 0 {
		p.wg.Add(1)
		go p.run()
	}

	return nil
}

// Source returns the opened source.
func (p *Simulated) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Play starts or resumes playback once ready.
func (p *Simulated) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready && !p.closed {
		p.playing = true
	}
}

// Pause pauses playback.
func (p *Simulated) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// Seek moves the clock, clamped to [0, duration] once the duration is known.
func (p *Simulated) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if p.ready && seconds > p.clip.Duration {
		seconds = p.clip.Duration
	}
	p.position = seconds
}

// Position returns the clock in seconds.
func (p *Simulated) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Duration returns the clip duration once ready.
func (p *Simulated) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return 0
	}
	return p.clip.Duration
}

// Playing reports whether the clock is running.
func (p *Simulated) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// VideoSize returns the decoded size once ready.
func (p *Simulated) VideoSize() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// SetVideoSize overrides the decoded size, as when the decoder switches renditions.
func (p *Simulated) SetVideoSize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width, p.height = width, height
}

// Observe registers l. Cancelling waits for an in-flight delivery to finish,
// so it must not be called from inside a listener.
func (p *Simulated) Observe(l Listener) func() {
	p.emitMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.emitMu.Lock()
			delete(p.listeners, id)
			p.emitMu.Unlock()
		})
	}
}

// Ready marks the source playable and reports StatusReady, or StatusFailed
// when the clip is configured to fail.
func (p *Simulated) Ready() {
	p.mu.Lock()
	if p.closed || p.failed || p.source == "" || p.ready {
		p.mu.Unlock()
		return
	}
	if p.clip.Err != nil {
		err := p.clip.Err
		p.mu.Unlock()
		p.Fail(err)
		return
	}
	p.ready = true
	p.width, p.height = p.clip.Width, p.clip.Height
	if p.position > p.clip.Duration {
		p.position = p.clip.Duration
	}
	p.mu.Unlock()

	p.emit(Event{Status: StatusReady})
}

// Advance runs the clock forward by seconds while playing, reporting
// StatusEnded when the end of the clip is reached.
func (p *Simulated) Advance(seconds float64) {
	p.mu.Lock()
	if p.closed || !p.playing {
		p.mu.Unlock()
		return
	}
	p.position += seconds
	ended := p.position >= p.clip.Duration
	if ended {
		p.position = p.clip.Duration
		p.playing = false
	}
	p.mu.Unlock()

	if ended {
		p.emit(Event{Status: StatusEnded})
	}
}

// Fail stops playback and reports a decode failure.
func (p *Simulated) Fail(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.failed = true
	p.mu.Unlock()

	p.emit(Event{Status: StatusFailed, Err: err})
}

// Closed reports whether Close has been called.
func (p *Simulated) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close releases the player and stops its clock.
func (p *Simulated) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Simulated) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			ready, failed := p.ready, p.failed
			p.mu.Unlock()

			if failed {
				continue
			}
			if !ready {
				p.Ready()
				continue
			}
			p.Advance(p.tick.Seconds())
		}
	}
}

func (p *Simulated) emit(e Event) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	for _, l := range p.listeners {
		l(e)
	}
}
