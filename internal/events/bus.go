// Package events fans out gallery notifications to listeners.
package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/metrics"
)

// Type identifies an event.
type Type int

const (
	PlaybackStateChanged Type = iota + 1
	MediaIndexChanged
	ViewerDismissed
)

func (t Type) String() string {
	switch t {
	case PlaybackStateChanged:
		return "playbackStateChanged"
	case MediaIndexChanged:
		return "mediaIndexChanged"
	case ViewerDismissed:
		return "viewerDismissed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one notification. State is set for PlaybackStateChanged,
// Index for MediaIndexChanged.
type Event struct {
	Type  Type
	State media.PlaybackState
	Index int
}

// Handler receives events on a goroutine owned by its subscription.
type Handler func(Event)

// Publisher is the sink components emit through.
type Publisher interface {
	Publish(e Event)
}

// Bus delivers every published event to every subscriber, in publish order
// per subscriber. Publish never blocks on a slow handler.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*subscription),
		logger: logger,
	}
}

// Subscribe registers h and returns a function that unregisters it.
// Events still queued for h when it is unregistered are discarded.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++

	s := &subscription{
		handler: h,
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		flush:   make(chan struct{}),
	}
	b.subs[id] = s

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		s.pump()
	}()

	return func() {
		b.mu.Lock()
		_, ok := b.subs[id]
		delete(b.subs, id)
		b.mu.Unlock()

		if ok {
			s.cancel()
		}
	}
}

// Publish queues e for every subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		metrics.EventsDroppedTotal.Inc()
		b.logger.Debug("event published after close", "event", e.Type)
		return
	}

	for _, s := range b.subs {
		s.enqueue(e)
	}
}

// Close delivers queued events, stops every subscription and waits for
// their handlers to return. It must not be called from a handler.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscription)
	b.mu.Unlock()

	for _, s := range subs {
		close(s.flush)
	}
	b.wg.Wait()
}

type subscription struct {
	handler Handler

	mu    sync.Mutex
	queue []Event

	signal chan struct{}
	stop   chan struct{}
	flush  chan struct{}
	once   sync.Once
}

func (s *subscription) enqueue(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() { close(s.stop) })
}

func (s *subscription) take() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *subscription) pump() {
	for {
		select {
		case <-s.stop:
			if n := len(s.take()); n > 0 {
				metrics.EventsDroppedTotal.Add(float64(n))
			}
			return
		case <-s.flush:
			s.deliver(s.take())
			return
		case <-s.signal:
			s.deliver(s.take())
		}
	}
}

func (s *subscription) deliver(batch []Event) {
	for _, e := range batch {
		select {
		case <-s.stop:
			metrics.EventsDroppedTotal.Inc()
			continue
		default:
		}
		s.handler(e)
	}
}
