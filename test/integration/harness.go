// Package integration provides integration testing utilities for MediaViewer.
package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/config"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/events"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/player"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/server"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/viewer"
)

// TestHarness manages the test environment for integration tests: a
// manifest origin, a viewer driving simulated decoders, and the HTTP
// bridge in front of it.
type TestHarness struct {
	t       *testing.T
	origin  *httptest.Server
	bridge  *httptest.Server
	tempDir string

	Factory *player.SimulatedFactory
	Viewer  *viewer.Viewer

	mu     sync.Mutex
	events []events.Event
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:       t,
		tempDir: t.TempDir(),
	}
}

// StartOrigin starts an HTTP server serving playlists from a temp dir.
func (h *TestHarness) StartOrigin(playlists map[string]string) {
	h.t.Helper()

	for name, content := range playlists {
		h.AddPlaylist(content, name)
	}

	h.origin = httptest.NewServer(http.FileServer(http.Dir(h.tempDir)))
	h.t.Logf("Origin started at %s", h.origin.URL)
}

// AddPlaylist writes a playlist into the origin's directory.
func (h *TestHarness) AddPlaylist(playlistContent string, playlistName string) {
	h.t.Helper()

	playlistPath := filepath.Join(h.tempDir, playlistName)
	if err := os.MkdirAll(filepath.Dir(playlistPath), 0o755); err != nil {
		h.t.Fatalf("failed to create playlist dir: %v", err)
	}
	if err := os.WriteFile(playlistPath, []byte(playlistContent), 0o644); err != nil {
		h.t.Fatalf("failed to write playlist: %v", err)
	}
}

// OriginURL returns the absolute URL of a file on the origin.
func (h *TestHarness) OriginURL(name string) string {
	h.t.Helper()

	if h.origin == nil {
		h.t.Fatal("StartOrigin must be called before OriginURL")
	}
	return h.origin.URL + "/" + strings.TrimPrefix(name, "/")
}

// StartViewer creates a viewer whose decoders tick on their own, and
// serves the HTTP bridge in front of it.
func (h *TestHarness) StartViewer(cfg config.Config, clips map[string]player.Clip) {
	h.t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	h.Factory = &player.SimulatedFactory{Clips: clips, Tick: 10 * time.Millisecond}
	v, err := viewer.New(cfg, h.Factory, nil, nil, logger)
	if err != nil {
		h.t.Fatalf("failed to create viewer: %v", err)
	}
	h.Viewer = v

	v.Subscribe(func(e events.Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})

	h.bridge = httptest.NewServer(server.New(v, 0, logger).Handler())
	h.t.Logf("Bridge started at %s", h.bridge.URL)
}

// Show posts a show payload through the bridge.
func (h *TestHarness) Show(payload string) int {
	h.t.Helper()
	return h.do(http.MethodPost, "/show", payload, nil)
}

// Post calls a control endpoint and returns the status code.
func (h *TestHarness) Post(path string) int {
	h.t.Helper()
	return h.do(http.MethodPost, path, "", nil)
}

// FetchState fetches the current playback snapshot.
func (h *TestHarness) FetchState() media.PlaybackState {
	h.t.Helper()

	var state media.PlaybackState
	if code := h.do(http.MethodGet, "/state", "", &state); code != http.StatusOK {
		h.t.Fatalf("unexpected status code for state: %d", code)
	}
	return state
}

// FetchQualities fetches the labels the displayed item accepts.
func (h *TestHarness) FetchQualities() []string {
	h.t.Helper()

	var body struct {
		Qualities []string `json:"qualities"`
	}
	if code := h.do(http.MethodGet, "/qualities", "", &body); code != http.StatusOK {
		h.t.Fatalf("unexpected status code for qualities: %d", code)
	}
	return body.Qualities
}

// FetchHealth fetches the health endpoint.
func (h *TestHarness) FetchHealth() viewer.Status {
	h.t.Helper()

	var body struct {
		Status string        `json:"status"`
		Viewer viewer.Status `json:"viewer"`
	}
	if code := h.do(http.MethodGet, "/health", "", &body); code != http.StatusOK {
		h.t.Fatalf("unexpected status code for health: %d", code)
	}
	return body.Viewer
}

// FetchMetrics fetches the Prometheus exposition.
func (h *TestHarness) FetchMetrics() string {
	h.t.Helper()

	resp, err := http.Get(h.bridge.URL + "/metrics")
	if err != nil {
		h.t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read metrics body: %v", err)
	}
	return string(body)
}

func (h *TestHarness) do(method, path, body string, out any) int {
	h.t.Helper()

	req, err := http.NewRequest(method, h.bridge.URL+path, strings.NewReader(body))
	if err != nil {
		h.t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("failed to decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// Events returns the events delivered so far.
func (h *TestHarness) Events() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Event, len(h.events))
	copy(out, h.events)
	return out
}

// IndexEvents returns the indices of delivered MediaIndexChanged events.
func (h *TestHarness) IndexEvents() []int {
	var out []int
	for _, e := range h.Events() {
		if e.Type == events.MediaIndexChanged {
			out = append(out, e.Index)
		}
	}
	return out
}

// HasEvent reports whether an event of type typ has been delivered.
func (h *TestHarness) HasEvent(typ events.Type) bool {
	for _, e := range h.Events() {
		if e.Type == typ {
			return true
		}
	}
	return false
}

// Cleanup stops all running services.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.bridge != nil {
		h.bridge.Close()
	}
	if h.Viewer != nil {
		if err := h.Viewer.Close(); err != nil {
			h.t.Errorf("failed to close viewer: %v", err)
		}
	}
	if h.origin != nil {
		h.origin.Close()
	}
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for condition: %s", description)
		}
	}
}

// ShowPayload builds a show payload for items given as source/kind pairs.
func ShowPayload(index int, items ...[2]string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf(`{"source": %q, "kind": %q}`, it[0], it[1])
	}
	return fmt.Sprintf(`{"currentIndex": %d, "title": "Integration", "items": [%s]}`, index, strings.Join(parts, ","))
}
