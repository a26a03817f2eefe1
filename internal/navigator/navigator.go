// Package navigator moves through the gallery and owns the playback
// session of the displayed item.
package navigator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/config"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/events"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/metrics"
)

// ErrNoNeighbor is returned when moving past the first or last item.
var ErrNoNeighbor = errors.New("no item in that direction")

// Phase is the swipe phase.
type Phase int

const (
	Idle Phase = iota
	Dragging
	Settling
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Settling:
		return "settling"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Direction is the neighbor a swipe moves toward.
type Direction int

const (
	None Direction = iota
	Previous
	Next
)

func (d Direction) String() string {
	switch d {
	case Previous:
		return "previous"
	case Next:
		return "next"
	default:
		return "none"
	}
}

// Swipe is the transient gesture state.
type Swipe struct {
	Phase     Phase
	Direction Direction
	// Offset is the horizontal translation of the outgoing item.
	Offset float64
}

// Session is the playback session the navigator rebuilds for every item.
type Session interface {
	Bind(item *media.Item) error
	Play() error
	Pause() error
	State() media.PlaybackState
	Close() error
}

// SessionFactory creates an unbound session.
type SessionFactory func() Session

// Navigator owns the item list, the current index and the current session.
type Navigator struct {
	cfg        config.SwipeConfig
	newSession SessionFactory
	events     events.Publisher
	logger     *slog.Logger

	mu      sync.Mutex
	items   []*media.Item
	index   int
	session Session
	width   float64

	swipe Swipe
	// tracking is set between BeginDrag and EndDrag.
	tracking bool
	// resume records whether the drag paused a playing item.
	resume bool
	closed bool
}

// New creates a navigator positioned at index. No session exists until Start.
func New(cfg config.Config, items []*media.Item, index int, newSession SessionFactory, publisher events.Publisher, logger *slog.Logger) (*Navigator, error) {
	if len(items) == 0 {
		return nil, errors.New("at least one item is required")
	}
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("index %d out of range [0, %d]", index, len(items)-1)
	}
	if newSession == nil {
		return nil, errors.New("session factory is required")
	}

	return &Navigator{
		cfg:        cfg.Swipe,
		newSession: newSession,
		events:     publisher,
		logger:     logger,
		items:      items,
		index:      index,
		width:      cfg.ViewportWidth,
	}, nil
}

// Start binds a session to the current item.
func (n *Navigator) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return errors.New("navigator closed")
	}
	if n.session != nil {
		return nil
	}
	return n.bindLocked()
}

// Index returns the current index.
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// Len returns the number of items.
func (n *Navigator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

// Current returns the displayed item.
func (n *Navigator) Current() *media.Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.items[n.index]
}

// Neighbor returns the item a swipe in direction d would reveal, for
// preview rendering. It returns nil at the ends.
func (n *Navigator) Neighbor(d Direction) *media.Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	i, ok := n.neighborLocked(d)
	if !ok {
		return nil
	}
	return n.items[i]
}

// Session returns the current session, or nil before Start.
func (n *Navigator) Session() Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session
}

// Swipe returns the gesture state.
func (n *Navigator) Swipe() Swipe {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.swipe
}

// SetViewportWidth records the width distance commits are measured against.
func (n *Navigator) SetViewportWidth(width float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if width >= 0 {
		n.width = width
	}
}

// BeginDrag starts tracking a gesture, snapping back any swipe in flight.
func (n *Navigator) BeginDrag() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	if n.swipe.Phase != Idle {
		n.cancelLocked()
	}
	n.tracking = true
}

// UpdateDrag reports the gesture translation since BeginDrag. Negative dx
// moves toward the next item.
func (n *Navigator) UpdateDrag(dx, dy float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.tracking || n.closed {
		return
	}

	switch n.swipe.Phase {
	case Idle:
		if math.Abs(dx) <= n.cfg.MinDistance || math.Abs(dx) < n.cfg.DominanceRatio*math.Abs(dy) {
			return
		}
		dir := Next
		if dx > 0 {
			dir = Previous
		}
		if _, ok := n.neighborLocked(dir); !ok {
			return
		}

		n.swipe = Swipe{Phase: Dragging, Direction: dir}
		n.resume = false
		if n.session != nil && n.session.State().IsPlaying {
			if err := n.session.Pause(); err != nil {
				n.logger.Debug("failed to pause for drag", "error", err)
			}
			n.resume = true
		}
		n.logger.Debug("drag started", "direction", dir.String(), "index", n.index)
		fallthrough
	case Dragging:
		n.swipe.Offset = n.clampLocked(dx)
	}
}

// EndDrag releases the gesture with the given horizontal velocity in
// units per second. It reports whether the swipe committed.
func (n *Navigator) EndDrag(velocity float64) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.tracking = false
	if n.swipe.Phase != Dragging {
		return false, nil
	}

	commit := math.Abs(velocity) > n.cfg.CommitVelocity ||
		(n.width > 0 && math.Abs(n.swipe.Offset) > n.cfg.CommitFraction*n.width)
	if !commit {
		n.cancelLocked()
		return false, nil
	}

	dir := n.swipe.Direction
	target, ok := n.neighborLocked(dir)
	if !ok {
		n.cancelLocked()
		return false, nil
	}

	n.swipe.Phase = Settling
	metrics.SwipesTotal.WithLabelValues("commit").Inc()
	n.logger.Info("swipe committed", "direction", dir.String(), "offset", n.swipe.Offset, "velocity", velocity)

	err := n.moveLocked(target)
	n.swipe = Swipe{}
	n.resume = false
	return true, err
}

// CancelDrag abandons the gesture and snaps back.
func (n *Navigator) CancelDrag() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.tracking = false
	if n.swipe.Phase != Idle {
		n.cancelLocked()
	}
}

// Next moves to the next item.
func (n *Navigator) Next() error {
	return n.step(Next)
}

// Previous moves to the previous item.
func (n *Navigator) Previous() error {
	return n.step(Previous)
}

func (n *Navigator) step(d Direction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return errors.New("navigator closed")
	}
	if n.swipe.Phase != Idle {
		n.cancelLocked()
	}
	n.tracking = false

	target, ok := n.neighborLocked(d)
	if !ok {
		return ErrNoNeighbor
	}
	return n.moveLocked(target)
}

// Close tears down the current session.
func (n *Navigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	n.tracking = false
	n.swipe = Swipe{}

	if n.session == nil {
		return nil
	}
	err := n.session.Close()
	n.session = nil
	return err
}

func (n *Navigator) neighborLocked(d Direction) (int, bool) {
	switch d {
	case Previous:
		return n.index - 1, n.index > 0
	case Next:
		return n.index + 1, n.index < len(n.items)-1
	default:
		return 0, false
	}
}

// clampLocked keeps the offset on the side of the drag direction and
// within the viewport.
func (n *Navigator) clampLocked(dx float64) float64 {
	switch n.swipe.Direction {
	case Next:
		dx = math.Min(dx, 0)
		if n.width > 0 {
			dx = math.Max(dx, -n.width)
		}
	case Previous:
		dx = math.Max(dx, 0)
		if n.width > 0 {
			dx = math.Min(dx, n.width)
		}
	}
	return dx
}

func (n *Navigator) cancelLocked() {
	if n.swipe.Phase == Dragging {
		metrics.SwipesTotal.WithLabelValues("cancel").Inc()
		n.logger.Debug("swipe cancelled", "direction", n.swipe.Direction.String(), "offset", n.swipe.Offset)
	}
	n.swipe = Swipe{}
	if n.resume && n.session != nil {
		if err := n.session.Play(); err != nil {
			n.logger.Debug("failed to resume after drag", "error", err)
		}
	}
	n.resume = false
}

// moveLocked changes the index, replaces the session and announces the change.
func (n *Navigator) moveLocked(target int) error {
	n.index = target

	if n.session != nil {
		if err := n.session.Close(); err != nil {
			n.logger.Warn("failed to close session", "error", err)
		}
		n.session = nil
	}
	err := n.bindLocked()

	n.logger.Info("index changed", "index", target)
	if n.events != nil {
		n.events.Publish(events.Event{Type: events.MediaIndexChanged, Index: target})
	}
	return err
}

func (n *Navigator) bindLocked() error {
	s := n.newSession()
	n.session = s
	if err := s.Bind(n.items[n.index]); err != nil {
		return fmt.Errorf("failed to bind item %d: %w", n.index, err)
	}
	return nil
}
