// Package viewer exposes the gallery operations offered to the host
// application.
//
// Every operation runs under one lock, so navigator and session transitions
// never interleave. Events are delivered asynchronously through Subscribe.
package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/config"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/events"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/navigator"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/parser"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/player"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/session"
)

var (
	ErrItemsRequired           = errors.New("items required")
	ErrCurrentIndexRequired    = errors.New("currentIndex required")
	ErrPresentationUnavailable = errors.New("presentation unavailable")
	ErrNotShowing              = errors.New("not showing")
	ErrTimeRequired            = errors.New("time required")
	ErrQualityRequired         = errors.New("quality required")
)

// Presenter puts the gallery on screen.
type Presenter interface {
	Present(title string, items []*media.Item, index int) error
	Dismiss()
}

// Status summarizes the viewer for diagnostics.
type Status struct {
	Showing  bool                `json:"showing"`
	Title    string              `json:"title,omitempty"`
	Index    int                 `json:"index"`
	Count    int                 `json:"count"`
	Session  string              `json:"session,omitempty"`
	Phase    string              `json:"phase,omitempty"`
	State    string              `json:"state,omitempty"`
	Retries  int                 `json:"retries"`
	Playback media.PlaybackState `json:"playback"`
}

// Viewer is the gallery core behind the host boundary.
type Viewer struct {
	cfg       config.Config
	factory   player.Factory
	parses    *parser.Service
	bus       *events.Bus
	presenter Presenter
	logger    *slog.Logger

	mu    sync.Mutex
	nav   *navigator.Navigator
	title string
	width float64
}

// New creates a viewer. fetcher may be nil to fetch manifests over HTTP,
// and presenter may be nil for a headless viewer.
func New(cfg config.Config, factory player.Factory, fetcher parser.Fetcher, presenter Presenter, logger *slog.Logger) (*Viewer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if factory == nil {
		return nil, errors.New("player factory is required")
	}
	if fetcher == nil {
		fetcher = parser.NewHTTPFetcher(cfg.FetchTimeout)
	}

	return &Viewer{
		cfg:       cfg,
		factory:   factory,
		parses:    parser.NewService(fetcher, logger),
		bus:       events.NewBus(logger),
		presenter: presenter,
		logger:    logger,
		width:     cfg.ViewportWidth,
	}, nil
}

// Subscribe registers a listener for gallery events.
func (v *Viewer) Subscribe(h events.Handler) (unsubscribe func()) {
	return v.bus.Subscribe(h)
}

// Show replaces whatever is displayed with req. Invalid requests are
// rejected before anything is torn down.
func (v *Viewer) Show(req media.ShowRequest) error {
	if !req.HasItems || len(req.Items) == 0 {
		return ErrItemsRequired
	}
	if req.CurrentIndex == nil {
		return ErrCurrentIndexRequired
	}

	index := *req.CurrentIndex
	if index < 0 {
		index = 0
	}
	if index >= len(req.Items) {
		index = len(req.Items) - 1
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	cfg := v.cfg
	cfg.ViewportWidth = v.width
	nav, err := navigator.New(cfg, req.Items, index, v.newSession, v.bus, v.logger)
	if err != nil {
		return fmt.Errorf("failed to create navigator: %w", err)
	}

	if v.nav != nil {
		v.logger.Info("replacing displayed gallery")
		v.teardownLocked()
	}

	if v.presenter != nil {
		if err := v.presenter.Present(req.Title, req.Items, index); err != nil {
			return fmt.Errorf("%w: %v", ErrPresentationUnavailable, err)
		}
	}

	if err := nav.Start(); err != nil {
		nav.Close()
		if v.presenter != nil {
			v.presenter.Dismiss()
		}
		return err
	}

	v.nav = nav
	v.title = req.Title
	v.logger.Info("showing gallery", "items", len(req.Items), "index", index)
	return nil
}

func (v *Viewer) newSession() navigator.Session {
	return session.New(v.cfg, v.factory, v.parses, v.bus, v.logger)
}

// Dismiss tears the gallery down and announces it. Dismissing a viewer
// that is not showing is a no-op.
func (v *Viewer) Dismiss() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nav == nil {
		return nil
	}
	v.teardownLocked()
	v.bus.Publish(events.Event{Type: events.ViewerDismissed})
	v.logger.Info("gallery dismissed")
	return nil
}

func (v *Viewer) teardownLocked() {
	if err := v.nav.Close(); err != nil {
		v.logger.Warn("failed to close navigator", "error", err)
	}
	if v.presenter != nil {
		v.presenter.Dismiss()
	}
	v.nav = nil
	v.title = ""
}

// Play starts playback. It is a no-op when nothing playable is displayed.
func (v *Viewer) Play() error {
	return v.withSession(func(s *session.Session) error {
		return ignoreNoPlayer(s.Play())
	})
}

// Pause pauses playback.
func (v *Viewer) Pause() error {
	return v.withSession(func(s *session.Session) error {
		return ignoreNoPlayer(s.Pause())
	})
}

// Seek moves playback to *seconds.
func (v *Viewer) Seek(seconds *float64) error {
	if seconds == nil {
		return ErrTimeRequired
	}
	return v.withSession(func(s *session.Session) error {
		return ignoreNoPlayer(s.Seek(*seconds))
	})
}

// SetQuality selects a variant by label, or "Auto".
func (v *Viewer) SetQuality(label string) error {
	if label == "" {
		return ErrQualityRequired
	}
	return v.withSession(func(s *session.Session) error {
		return ignoreNoPlayer(s.SetQuality(label))
	})
}

// Retry reloads the displayed item after a recoverable playback failure.
func (v *Viewer) Retry() error {
	return v.withSession(func(s *session.Session) error {
		return s.Retry()
	})
}

// PlaybackState returns a snapshot of the displayed item's playback.
func (v *Viewer) PlaybackState() (media.PlaybackState, error) {
	var state media.PlaybackState
	err := v.withSession(func(s *session.Session) error {
		state = s.State()
		return nil
	})
	return state, err
}

// AvailableQualities lists the labels SetQuality accepts for the displayed item.
func (v *Viewer) AvailableQualities() ([]string, error) {
	var labels []string
	err := v.withSession(func(s *session.Session) error {
		labels = s.AvailableQualities()
		return nil
	})
	return labels, err
}

// Next moves to the next item. It is a no-op on the last item.
func (v *Viewer) Next() error {
	return v.step((*navigator.Navigator).Next)
}

// Previous moves to the previous item. It is a no-op on the first item.
func (v *Viewer) Previous() error {
	return v.step((*navigator.Navigator).Previous)
}

func (v *Viewer) step(move func(*navigator.Navigator) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nav == nil {
		return ErrNotShowing
	}
	if err := move(v.nav); err != nil && !errors.Is(err, navigator.ErrNoNeighbor) {
		return err
	}
	return nil
}

// Index returns the displayed item's index.
func (v *Viewer) Index() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nav == nil {
		return 0, ErrNotShowing
	}
	return v.nav.Index(), nil
}

// BeginDrag starts a horizontal gesture.
func (v *Viewer) BeginDrag() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nav != nil {
		v.nav.BeginDrag()
	}
}

// UpdateDrag reports the gesture translation since BeginDrag.
func (v *Viewer) UpdateDrag(dx, dy float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nav != nil {
		v.nav.UpdateDrag(dx, dy)
	}
}

// EndDrag releases the gesture and reports whether it moved to a neighbor.
func (v *Viewer) EndDrag(velocity float64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nav == nil {
		return false, nil
	}
	return v.nav.EndDrag(velocity)
}

// CancelDrag abandons the gesture.
func (v *Viewer) CancelDrag() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nav != nil {
		v.nav.CancelDrag()
	}
}

// Swipe returns the gesture state of the displayed gallery.
func (v *Viewer) Swipe() navigator.Swipe {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.nav == nil {
		return navigator.Swipe{}
	}
	return v.nav.Swipe()
}

// SetViewportWidth reports the viewport width used for swipe commits.
func (v *Viewer) SetViewportWidth(width float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if width < 0 {
		return
	}
	v.width = width
	if v.nav != nil {
		v.nav.SetViewportWidth(width)
	}
}

// Status returns a diagnostic summary.
func (v *Viewer) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nav == nil {
		return Status{}
	}

	st := Status{
		Showing: true,
		Title:   v.title,
		Index:   v.nav.Index(),
		Count:   v.nav.Len(),
		Phase:   v.nav.Swipe().Phase.String(),
	}
	if s, ok := v.nav.Session().(*session.Session); ok {
		status := s.Status()
		st.Session = s.ID()
		st.State = status.State.String()
		st.Retries = status.RetryCount
		st.Playback = s.State()
	}
	return st
}

// Close dismisses the gallery and stops background work. The viewer
// cannot be used afterwards.
func (v *Viewer) Close() error {
	err := v.Dismiss()
	v.parses.Close()
	v.bus.Close()
	return err
}

func (v *Viewer) withSession(fn func(*session.Session) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nav == nil {
		return ErrNotShowing
	}
	s, ok := v.nav.Session().(*session.Session)
	if !ok {
		return ErrNotShowing
	}
	return fn(s)
}

func ignoreNoPlayer(err error) error {
	if errors.Is(err, session.ErrNoPlayer) {
		return nil
	}
	return err
}
