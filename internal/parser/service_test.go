package parser

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720p.m3u8
`

func TestService_Parse(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(masterPlaylist))
	}))
	defer server.Close()

	svc := NewService(NewHTTPFetcher(5*time.Second), createTestLogger())
	defer svc.Close()

	manifestURL := server.URL + "/media/master.m3u8"
	variants := svc.Parse(context.Background(), manifestURL)

	want := []variant.Variant{
		{Label: "1080p", URL: server.URL + "/media/1080p.m3u8", Width: 1920, Height: 1080},
		{Label: "720p", URL: server.URL + "/media/720p.m3u8", Width: 1280, Height: 720},
	}
	if diff := cmp.Diff(want, variants); diff != "" {
		t.Errorf("variants mismatch (-want +got):\n%s", diff)
	}

	// A second parse is served from the cache
	again := svc.Parse(context.Background(), manifestURL)
	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("cached variants mismatch (-want +got):\n%s", diff)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("origin hits = %d, want 1", got)
	}
}

func TestService_Parse_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := server.URL + "/master.m3u8"
	server.Close()

	svc := NewService(NewHTTPFetcher(time.Second), createTestLogger())
	defer svc.Close()

	if variants := svc.Parse(context.Background(), unreachable); len(variants) != 0 {
		t.Errorf("Expected empty list for unreachable URL, got %v", variants)
	}
}

func TestService_Parse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("<html>oops</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			svc := NewService(NewHTTPFetcher(time.Second), createTestLogger())
			defer svc.Close()

			if variants := svc.Parse(context.Background(), server.URL+"/master.m3u8"); len(variants) != 0 {
				t.Errorf("Expected empty list, got %v", variants)
			}
		})
	}
}

func TestService_Parse_MalformedURL(t *testing.T) {
	svc := NewService(NewHTTPFetcher(time.Second), createTestLogger())
	defer svc.Close()

	if variants := svc.Parse(context.Background(), "://bad url.m3u8"); len(variants) != 0 {
		t.Errorf("Expected empty list for malformed URL, got %v", variants)
	}
}

func TestService_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (string, error) {
		if calls.Add(1) == 1 {
			return "garbage", nil
		}
		return masterPlaylist, nil
	})

	svc := NewService(fetcher, createTestLogger())
	defer svc.Close()

	if variants := svc.Parse(context.Background(), testManifestURL); len(variants) != 0 {
		t.Fatalf("Expected empty list on first failing parse, got %v", variants)
	}
	if variants := svc.Parse(context.Background(), testManifestURL); len(variants) != 2 {
		t.Errorf("Expected 2 variants after recovery, got %d", len(variants))
	}
}

func TestService_Go(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (string, error) {
		return masterPlaylist, nil
	})
	svc := NewService(fetcher, createTestLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	var got []variant.Variant
	svc.Go(testManifestURL, func(vs []variant.Variant) {
		got = vs
		wg.Done()
	})
	wg.Wait()
	svc.Close()

	if len(got) != 2 {
		t.Errorf("Expected 2 variants, got %d", len(got))
	}
}

func TestService_CloseCancelsPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc := NewService(fetcher, createTestLogger())

	var called atomic.Bool
	svc.Go(testManifestURL, func([]variant.Variant) { called.Store(true) })
	<-started
	svc.Close()

	if called.Load() {
		t.Error("done callback ran after Close")
	}

	// Go after Close is a no-op
	svc.Go(testManifestURL, func([]variant.Variant) { called.Store(true) })
	if called.Load() {
		t.Error("done callback ran for a closed service")
	}
}
