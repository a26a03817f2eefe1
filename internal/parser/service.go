package parser

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/metrics"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

// Service resolves manifest variants in the background.
//
// Results are memoized by manifest URL and concurrent requests for the same
// URL share a single fetch. Failures are never cached.
type Service struct {
	fetcher Fetcher
	logger  *slog.Logger
	group   singleflight.Group

	mu     sync.RWMutex
	cache  map[string][]variant.Variant
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a parse service that fetches through fetcher.
func NewService(fetcher Fetcher, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string][]variant.Variant),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Parse fetches and parses the master manifest at manifestURL.
// It never fails: any fetch or parse error yields an empty list.
func (s *Service) Parse(ctx context.Context, manifestURL string) []variant.Variant {
	s.mu.RLock()
	cached, ok := s.cache[manifestURL]
	s.mu.RUnlock()
	if ok {
		metrics.ManifestParsesTotal.WithLabelValues("cached").Inc()
		return cached
	}

	v, err, shared := s.group.Do(manifestURL, func() (any, error) {
		text, err := s.fetcher.FetchText(ctx, manifestURL)
		if err != nil {
			return nil, err
		}
		return ParseMaster(strings.NewReader(text), manifestURL)
	})
	if err != nil {
		metrics.ManifestParsesTotal.WithLabelValues("error").Inc()
		s.logger.Warn("manifest parse failed", "url", manifestURL, "error", err)
		return nil
	}

	variants, _ := v.([]variant.Variant)
	if len(variants) == 0 {
		metrics.ManifestParsesTotal.WithLabelValues("empty").Inc()
		s.logger.Debug("manifest declares no variants", "url", manifestURL)
		return nil
	}

	s.mu.Lock()
	s.cache[manifestURL] = variants
	s.mu.Unlock()

	metrics.ManifestParsesTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("parsed manifest", "url", manifestURL, "variants", len(variants), "shared", shared)

	return variants
}

// Go parses manifestURL on a background goroutine and passes the result to
// done. done is not called if the service is closed first.
func (s *Service) Go(manifestURL string, done func([]variant.Variant)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		variants := s.Parse(s.ctx, manifestURL)
		if s.ctx.Err() != nil {
			return
		}
		done(variants)
	}()
}

// Close cancels outstanding fetches and waits for background parses to exit.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
