package viewer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/config"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/events"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/parser"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/player"
)

const testMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720p.m3u8
`

const testPayload = `{
  "title": "Holiday",
  "currentIndex": 0,
  "items": [
    {"source": "https://cdn.example.com/beach.jpg", "kind": "image", "altText": "Beach"},
    {"source": "https://cdn.example.com/surf/master.m3u8", "kind": "video"},
    {"kind": "video"},
    {"source": "https://cdn.example.com/sunset.mp4", "kind": "video",
     "qualityVariants": [{"label": "480p", "url": "https://cdn.example.com/sunset-480.mp4"}]}
  ]
}`

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type fakePresenter struct {
	err       error
	presented int
	dismissed int
	title     string
}

func (p *fakePresenter) Present(title string, items []*media.Item, index int) error {
	if p.err != nil {
		return p.err
	}
	p.presented++
	p.title = title
	return nil
}

func (p *fakePresenter) Dismiss() {
	p.dismissed++
}

func staticFetcher(body string) parser.Fetcher {
	return parser.FetcherFunc(func(ctx context.Context, url string) (string, error) {
		return body, nil
	})
}

func newTestViewer(t *testing.T, presenter Presenter) (*Viewer, *player.SimulatedFactory, chan events.Event) {
	t.Helper()

	cfg := config.Default()
	cfg.SampleInterval = time.Hour
	cfg.ViewportWidth = 400

	f := &player.SimulatedFactory{}
	v, err := New(cfg, f, staticFetcher(testMaster), presenter, createTestLogger())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ch := make(chan events.Event, 64)
	v.Subscribe(func(e events.Event) { ch <- e })
	t.Cleanup(func() { v.Close() })
	return v, f, ch
}

func waitForEvent(t *testing.T, ch <-chan events.Event, typ events.Type) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", typ)
			return events.Event{}
		}
	}
}

func decode(t *testing.T, payload string) media.ShowRequest {
	t.Helper()
	req, err := media.DecodeShowRequest([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeShowRequest error: %v", err)
	}
	return req
}

func TestShow_Validation(t *testing.T) {
	v, f, _ := newTestViewer(t, nil)

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"no items", `{"currentIndex": 0}`, ErrItemsRequired},
		{"all items invalid", `{"currentIndex": 0, "items": [{"kind": "video"}, {"source": "a.gif", "kind": "gif"}]}`, ErrItemsRequired},
		{"no index", `{"items": [{"source": "a.jpg", "kind": "image"}]}`, ErrCurrentIndexRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Show(decode(t, tt.payload)); !errors.Is(err, tt.want) {
				t.Errorf("Show error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := v.PlaybackState(); !errors.Is(err, ErrNotShowing) {
		t.Errorf("PlaybackState = %v, want ErrNotShowing", err)
	}
	if len(f.Players()) != 0 {
		t.Error("rejected show should not create players")
	}
}

func TestShow_PresentationUnavailable(t *testing.T) {
	presenter := &fakePresenter{err: errors.New("no window")}
	v, f, _ := newTestViewer(t, presenter)

	err := v.Show(decode(t, testPayload))
	if !errors.Is(err, ErrPresentationUnavailable) {
		t.Fatalf("Show error = %v, want ErrPresentationUnavailable", err)
	}
	if v.Status().Showing {
		t.Error("viewer should not be showing")
	}
	if len(f.Players()) != 0 {
		t.Error("failed presentation should not create players")
	}
}

func TestNotShowing(t *testing.T) {
	v, _, _ := newTestViewer(t, nil)
	seek := 3.0

	calls := map[string]error{
		"Play":       v.Play(),
		"Pause":      v.Pause(),
		"Seek":       v.Seek(&seek),
		"SetQuality": v.SetQuality("720p"),
		"Retry":      v.Retry(),
		"Next":       v.Next(),
	}
	for name, err := range calls {
		if !errors.Is(err, ErrNotShowing) {
			t.Errorf("%s = %v, want ErrNotShowing", name, err)
		}
	}

	if err := v.Dismiss(); err != nil {
		t.Errorf("Dismiss while hidden = %v", err)
	}
	if _, err := v.AvailableQualities(); !errors.Is(err, ErrNotShowing) {
		t.Errorf("AvailableQualities = %v, want ErrNotShowing", err)
	}
}

func TestArgumentValidation(t *testing.T) {
	v, _, _ := newTestViewer(t, nil)
	v.Show(decode(t, testPayload))

	if err := v.Seek(nil); !errors.Is(err, ErrTimeRequired) {
		t.Errorf("Seek(nil) = %v, want ErrTimeRequired", err)
	}
	if err := v.SetQuality(""); !errors.Is(err, ErrQualityRequired) {
		t.Errorf("SetQuality(\"\") = %v, want ErrQualityRequired", err)
	}
}

func TestGalleryFlow(t *testing.T) {
	presenter := &fakePresenter{}
	v, f, ch := newTestViewer(t, presenter)

	if err := v.Show(decode(t, testPayload)); err != nil {
		t.Fatalf("Show error: %v", err)
	}
	if presenter.presented != 1 || presenter.title != "Holiday" {
		t.Errorf("presenter = %+v, want one presentation titled Holiday", presenter)
	}

	// Image: playback controls are no-ops
	if err := v.Play(); err != nil {
		t.Errorf("Play on image = %v", err)
	}
	state, err := v.PlaybackState()
	if err != nil {
		t.Fatalf("PlaybackState error: %v", err)
	}
	if diff := cmp.Diff(media.PlaybackState{}, state); diff != "" {
		t.Errorf("image state mismatch (-want +got):\n%s", diff)
	}

	if err := v.Previous(); err != nil {
		t.Errorf("Previous at first item = %v, want no-op", err)
	}

	if err := v.Next(); err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if e := waitForEvent(t, ch, events.MediaIndexChanged); e.Index != 1 {
		t.Errorf("index event = %d, want 1", e.Index)
	}

	p := f.Last()
	if p.Source() != "https://cdn.example.com/surf/master.m3u8" {
		t.Errorf("Source = %q", p.Source())
	}
	p.Ready()
	waitForEvent(t, ch, events.PlaybackStateChanged)

	// Variants arrive from the manifest in the background
	deadline := time.Now().Add(2 * time.Second)
	var qualities []string
	for time.Now().Before(deadline) {
		qualities, _ = v.AvailableQualities()
		if len(qualities) == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if diff := cmp.Diff([]string{"Auto", "360p", "720p"}, qualities); diff != "" {
		t.Fatalf("AvailableQualities mismatch (-want +got):\n%s", diff)
	}

	if err := v.SetQuality("360p"); err != nil {
		t.Fatalf("SetQuality error: %v", err)
	}
	if src := f.Last().Source(); src != "https://cdn.example.com/surf/360p.m3u8" {
		t.Errorf("Source after switch = %q", src)
	}
	f.Last().Ready()

	state, _ = v.PlaybackState()
	if !state.IsPlaying || state.CurrentQuality != "360p" {
		t.Errorf("state = %+v, want playing at 360p", state)
	}

	st := v.Status()
	if !st.Showing || st.Index != 1 || st.Count != 3 || st.State != "playing" || st.Session == "" {
		t.Errorf("Status = %+v", st)
	}

	if err := v.Dismiss(); err != nil {
		t.Fatalf("Dismiss error: %v", err)
	}
	waitForEvent(t, ch, events.ViewerDismissed)
	if presenter.dismissed != 1 {
		t.Errorf("presenter dismissed %d times, want 1", presenter.dismissed)
	}
	if !f.Last().Closed() {
		t.Error("dismiss should release the player")
	}
	if _, err := v.PlaybackState(); !errors.Is(err, ErrNotShowing) {
		t.Errorf("PlaybackState after dismiss = %v, want ErrNotShowing", err)
	}
}

func TestSwipe(t *testing.T) {
	v, f, ch := newTestViewer(t, nil)

	req := decode(t, testPayload)
	idx := 2
	req.CurrentIndex = &idx
	v.Show(req)
	f.Last().Ready()

	v.BeginDrag()
	v.UpdateDrag(80, 10)
	if sw := v.Swipe(); sw.Phase.String() != "dragging" {
		t.Fatalf("Phase = %v, want dragging", sw.Phase)
	}
	if f.Last().Playing() {
		t.Error("drag should pause playback")
	}

	committed, err := v.EndDrag(200)
	if err != nil || committed {
		t.Fatalf("EndDrag = %v, %v; want cancelled", committed, err)
	}
	if !f.Last().Playing() {
		t.Error("cancelled drag should resume playback")
	}

	v.SetViewportWidth(300)
	v.BeginDrag()
	v.UpdateDrag(100, 0)
	if committed, _ := v.EndDrag(0); !committed {
		t.Fatal("expected commit past 0.3 of a 300 wide viewport")
	}
	if e := waitForEvent(t, ch, events.MediaIndexChanged); e.Index != 1 {
		t.Errorf("index event = %d, want 1", e.Index)
	}
	if i, _ := v.Index(); i != 1 {
		t.Errorf("Index = %d, want 1", i)
	}
}

func TestShow_ClampsIndexAndReplaces(t *testing.T) {
	presenter := &fakePresenter{}
	v, f, _ := newTestViewer(t, presenter)

	req := decode(t, testPayload)
	idx := 10
	req.CurrentIndex = &idx
	if err := v.Show(req); err != nil {
		t.Fatalf("Show error: %v", err)
	}
	if i, _ := v.Index(); i != 2 {
		t.Errorf("Index = %d, want clamp to 2", i)
	}
	first := f.Last()

	if err := v.Show(decode(t, testPayload)); err != nil {
		t.Fatalf("second Show error: %v", err)
	}
	if !first.Closed() {
		t.Error("replacing the gallery should release the previous player")
	}
	if presenter.presented != 2 || presenter.dismissed != 1 {
		t.Errorf("presenter = %+v", presenter)
	}
}

func TestClose_NoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := config.Default()
	cfg.SampleInterval = 5 * time.Millisecond

	f := &player.SimulatedFactory{Tick: 5 * time.Millisecond}
	v, err := New(cfg, f, staticFetcher(testMaster), nil, createTestLogger())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	v.Subscribe(func(events.Event) {})

	req := decode(t, testPayload)
	idx := 1
	req.CurrentIndex = &idx
	if err := v.Show(req); err != nil {
		t.Fatalf("Show error: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if err := v.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.Default(), nil, nil, nil, createTestLogger()); err == nil {
		t.Error("Expected error for missing factory")
	}
	if _, err := New(config.Config{MaxRetries: -1}, &player.SimulatedFactory{}, nil, nil, createTestLogger()); err == nil {
		t.Error("Expected error for invalid config")
	}
}
