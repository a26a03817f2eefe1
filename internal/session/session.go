// Package session implements the playback session bound to the displayed
// gallery item.
//
// A Session owns at most one decoder at a time. Every decoder it creates is
// tagged with a generation; events from an older generation, or arriving
// after Close, are discarded. Decoder listeners are released with the
// session lock dropped, since a listener may be blocked waiting for it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/config"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/events"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/metrics"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/parser"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/player"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/quality"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

var (
	// ErrNoPlayer is returned by playback controls when nothing playable is bound.
	ErrNoPlayer = errors.New("no active player")
	// ErrRetriesExhausted is returned by Retry once the failure is terminal.
	ErrRetriesExhausted = errors.New("playback retries exhausted")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// State is the playback lifecycle state.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Playing
	Paused
	Ended
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status describes where the session is in its lifecycle.
type Status struct {
	State      State
	RetryCount int
	// Terminal is set once failures exceeded the retry budget.
	Terminal bool
}

// Parser resolves manifest variants in the background.
type Parser interface {
	Go(manifestURL string, done func([]variant.Variant))
}

// Session is the playback state machine for one gallery item.
type Session struct {
	id      string
	cfg     config.Config
	factory player.Factory
	parser  Parser
	events  events.Publisher
	logger  *slog.Logger

	mu         sync.Mutex
	item       *media.Item
	player     player.Player
	unobserve  func()
	source     string
	state      State
	retryCount int
	// pinned is the manually selected label; empty means Auto.
	pinned string

	// Applied when the current decoder reports ready.
	pendingSeek *float64
	resume      bool

	gen    uint64 // decoder generation
	bindID uint64 // bind generation, gates parse results
	closed bool

	stopSampler context.CancelFunc
	samplerDone <-chan struct{}
}

// New creates an unbound session. parser may be nil, in which case
// adaptive sources are played without variant discovery.
func New(cfg config.Config, factory player.Factory, parser Parser, publisher events.Publisher, logger *slog.Logger) *Session {
	id := uuid.NewString()
	metrics.ActiveSessions.Inc()
	return &Session{
		id:      id,
		cfg:     cfg,
		factory: factory,
		parser:  parser,
		events:  publisher,
		logger:  logger.With("session", id),
	}
}

// ID returns the session's correlation ID.
func (s *Session) ID() string {
	return s.id
}

// Item returns the bound item, or nil.
func (s *Session) Item() *media.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.item
}

// Bind tears down any previous decoder and binds item. Video items start
// playing their original source immediately; an adaptive source without
// variants is parsed in the background.
func (s *Session) Bind(item *media.Item) error {
	if item == nil {
		return errors.New("item is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, unobserve := s.detachLocked()
	sampling := s.stopSamplerLocked()
	s.bindID++
	bindID := s.bindID
	s.item = item
	s.pinned = ""
	s.retryCount = 0
	s.source = ""
	s.pendingSeek = nil
	s.resume = false
	if item.Kind != media.Video {
		s.state = Ready
	} else {
		s.state = Loading
	}
	s.mu.Unlock()

	release(old, unobserve)
	if sampling != nil {
		<-sampling
	}

	metrics.SessionsBoundTotal.WithLabelValues(item.Kind.String()).Inc()
	s.logger.Info("bound item", "kind", item.Kind.String(), "source", item.Source)

	if item.Kind != media.Video {
		return nil
	}

	if s.parser != nil && !item.HasVariants() && parser.IsAdaptiveManifestURL(item.Source) {
		s.parser.Go(item.Source, func(vs []variant.Variant) {
			// Stored on the item even when the session has moved on.
			item.SetVariants(vs)
			s.variantsResolved(bindID, len(vs))
		})
	}

	if err := s.open(item.Source, nil, true); err != nil {
		return err
	}
	s.startSampler()
	return nil
}

func (s *Session) variantsResolved(bindID uint64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || bindID != s.bindID {
		s.logger.Debug("discarding late manifest result", "variants", n)
		return
	}
	s.logger.Info("quality variants resolved", "variants", n)
}

// open replaces the decoder with a new one playing source. seek, if set,
// is applied once the new decoder is ready; play resumes playback then.
func (s *Session) open(source string, seek *float64, play bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, unobserve := s.detachLocked()
	gen := s.gen
	s.mu.Unlock()

	release(old, unobserve)

	p, err := s.factory.NewPlayer()
	if err != nil {
		s.mu.Lock()
		if !s.closed && gen == s.gen {
			s.state = Loading
			s.failLocked(gen, fmt.Errorf("failed to create player: %w", err))
		}
		s.mu.Unlock()
		return nil
	}
	cancel := p.Observe(s.listener(gen))

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		release(p, cancel)
		return ErrClosed
	}
	s.player = p
	s.unobserve = cancel
	s.source = source
	s.state = Loading
	s.pendingSeek = seek
	s.resume = play

	if err := p.Open(source); err != nil {
		s.failLocked(gen, fmt.Errorf("failed to open %s: %w", source, err))
	}
	s.mu.Unlock()

	return nil
}

func (s *Session) listener(gen uint64) player.Listener {
	return func(e player.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed || gen != s.gen {
			return
		}

		switch e.Status {
		case player.StatusReady:
			s.readyLocked()
		case player.StatusEnded:
			if s.state == Playing || s.state == Paused {
				s.state = Ended
				s.logger.Debug("playback ended")
				s.publishLocked()
			}
		case player.StatusFailed:
			s.failLocked(gen, e.Err)
		}
	}
}

func (s *Session) readyLocked() {
	if s.state != Loading {
		return
	}

	s.state = Ready
	if s.pendingSeek != nil {
		s.player.Seek(*s.pendingSeek)
		s.pendingSeek = nil
	}
	if s.resume {
		s.player.Play()
		s.state = Playing
	}
	s.resume = false

	s.logger.Debug("player ready", "source", s.source, "state", s.state.String())
	s.publishLocked()
}

func (s *Session) failLocked(gen uint64, err error) {
	if gen != s.gen || s.state == Failed {
		return
	}

	s.state = Failed
	s.retryCount++
	s.pendingSeek = nil
	s.resume = false

	if s.retryCount <= s.cfg.MaxRetries {
		metrics.PlaybackFailuresTotal.WithLabelValues("recoverable").Inc()
		s.logger.Warn("playback failed", "retryCount", s.retryCount, "error", err)
	} else {
		metrics.PlaybackFailuresTotal.WithLabelValues("terminal").Inc()
		s.logger.Error("playback failed, retries exhausted", "retryCount", s.retryCount, "error", err)
	}
	s.publishLocked()
}

// Play starts or resumes playback. Playing from the end restarts at zero.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return err
	}

	switch s.state {
	case Loading:
		s.resume = true
		return nil
	case Ended:
		s.player.Seek(0)
	case Ready, Paused:
	default:
		return nil
	}

	s.player.Play()
	s.state = Playing
	s.publishLocked()
	return nil
}

// Pause pauses playback.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return err
	}

	switch s.state {
	case Loading:
		s.resume = false
	case Playing:
		s.player.Pause()
		s.state = Paused
		s.publishLocked()
	}
	return nil
}

// Seek moves playback to seconds, clamped to the media bounds once the
// duration is known. Before the decoder is ready the seek is deferred.
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return err
	}

	if seconds < 0 {
		seconds = 0
	}
	if d := s.player.Duration(); d > 0 && seconds > d {
		seconds = d
	}

	if s.state == Loading {
		s.pendingSeek = &seconds
		return nil
	}

	s.player.Seek(seconds)
	if s.state == Ended && seconds < s.player.Duration() {
		s.state = Paused
	}
	return nil
}

// SetQuality switches to the variant with the given label, or back to the
// original source for variant.Auto. Position and play state carry over.
// Labels the item does not declare are ignored.
func (s *Session) SetQuality(label string) error {
	s.mu.Lock()
	if err := s.activeLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	var target, mode string
	if label == variant.Auto {
		if s.pinned == "" && s.source == s.item.Source {
			s.mu.Unlock()
			return nil
		}
		target, mode = s.item.Source, "auto"
	} else {
		v, ok := variant.Find(s.item.Variants(), label)
		if !ok {
			s.mu.Unlock()
			s.logger.Debug("ignoring unknown quality", "label", label)
			return nil
		}
		if s.pinned == label && s.source == v.URL {
			s.mu.Unlock()
			return nil
		}
		target, mode = v.URL, "manual"
	}

	pos := s.currentTimeLocked()
	play := s.state == Playing || (s.state == Loading && s.resume)
	if label == variant.Auto {
		s.pinned = ""
	} else {
		s.pinned = label
	}
	s.mu.Unlock()

	metrics.QualitySwitchesTotal.WithLabelValues(mode).Inc()
	s.logger.Info("switching quality", "label", label, "position", pos, "playing", play)

	return s.open(target, &pos, play)
}

// Retry re-binds the item after a recoverable failure. It is a no-op
// unless the session has failed.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != Failed || s.item == nil {
		s.mu.Unlock()
		return nil
	}
	if s.retryCount > s.cfg.MaxRetries {
		s.mu.Unlock()
		return ErrRetriesExhausted
	}
	s.pinned = ""
	source := s.item.Source
	attempt := s.retryCount
	s.mu.Unlock()

	s.logger.Info("retrying playback", "retryCount", attempt)
	return s.open(source, nil, true)
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:      s.state,
		RetryCount: s.retryCount,
		Terminal:   s.state == Failed && s.retryCount > s.cfg.MaxRetries,
	}
}

// State returns a playback snapshot.
func (s *Session) State() media.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AvailableQualities lists Auto followed by the bound item's variant labels.
func (s *Session) AvailableQualities() []string {
	s.mu.Lock()
	item := s.item
	s.mu.Unlock()

	qualities := []string{variant.Auto}
	if item == nil || item.Kind != media.Video {
		return qualities
	}
	return append(qualities, variant.Labels(item.Variants())...)
}

// Close stops sampling, releases the decoder and discards any pending
// manifest result. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.bindID++
	old, unobserve := s.detachLocked()
	sampling := s.stopSamplerLocked()
	s.mu.Unlock()

	if sampling != nil {
		<-sampling
	}
	release(old, unobserve)

	metrics.ActiveSessions.Dec()
	s.logger.Debug("session closed")
	return nil
}

func (s *Session) activeLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.player == nil {
		return ErrNoPlayer
	}
	return nil
}

func (s *Session) currentTimeLocked() float64 {
	if s.pendingSeek != nil {
		return *s.pendingSeek
	}
	if s.player == nil {
		return 0
	}
	return s.player.Position()
}

func (s *Session) snapshotLocked() media.PlaybackState {
	if s.player == nil {
		return media.PlaybackState{CurrentQuality: s.pinned}
	}

	state := media.PlaybackState{
		IsPlaying:   s.player.Playing(),
		CurrentTime: s.currentTimeLocked(),
		Duration:    s.player.Duration(),
	}
	if s.pinned != "" {
		state.CurrentQuality = s.pinned
	} else if s.item != nil {
		w, h := s.player.VideoSize()
		if label, ok := quality.ResolveActiveLabel(w, h, s.item.Variants()); ok {
			state.CurrentQuality = label
		}
	}
	return state
}

func (s *Session) publishLocked() {
	s.publish(s.snapshotLocked())
}

func (s *Session) publish(state media.PlaybackState) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{Type: events.PlaybackStateChanged, State: state})
}

// detachLocked takes ownership of the current decoder away from the session.
func (s *Session) detachLocked() (player.Player, func()) {
	p, cancel := s.player, s.unobserve
	s.player, s.unobserve = nil, nil
	s.gen++
	return p, cancel
}

// release unregisters the listener before closing the decoder.
func release(p player.Player, cancel func()) {
	if cancel != nil {
		cancel()
	}
	if p != nil {
		p.Close()
	}
}

func (s *Session) startSampler() {
	if s.cfg.SampleInterval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stopSampler != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopSampler = cancel
	s.samplerDone = done

	go s.sample(ctx, done)
}

// stopSamplerLocked stops the sampler and returns a channel that is closed
// once it has exited. Wait on it only after releasing the session lock.
func (s *Session) stopSamplerLocked() <-chan struct{} {
	done := s.samplerDone
	if s.stopSampler != nil {
		s.stopSampler()
	}
	s.stopSampler, s.samplerDone = nil, nil
	return done
}

func (s *Session) sample(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if ctx.Err() == nil && s.player != nil {
				state := s.snapshotLocked()
				s.logger.Debug("playback sample", "currentTime", state.CurrentTime, "quality", state.CurrentQuality)
				s.publish(state)
			}
			s.mu.Unlock()
		}
	}
}
