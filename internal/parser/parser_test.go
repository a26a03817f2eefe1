package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

const testManifestURL = "https://cdn.example.com/videos/clip/master.m3u8"

func TestParseMaster_ResolutionRelativeURI(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2"
720p.m3u8
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []variant.Variant{{
		Label:  "720p",
		URL:    "https://cdn.example.com/videos/clip/720p.m3u8",
		Width:  1280,
		Height: 720,
	}}
	if diff := cmp.Diff(want, variants); diff != "" {
		t.Errorf("variants mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMaster_BandwidthTiers(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=499999
low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=500000
mid.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1999999
mid2.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2000000
high.m3u8
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	wantLabels := []string{"SD", "HD", "HD", "Full HD"}
	if diff := cmp.Diff(wantLabels, variant.Labels(variants)); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	for _, v := range variants {
		if v.Width != 0 || v.Height != 0 {
			t.Errorf("bandwidth-tier variant %s has dimensions %dx%d, want 0x0", v.Label, v.Width, v.Height)
		}
	}
}

func TestParseMaster_AbsoluteURIsAndOrder(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
https://other.example.com/1080.m3u8

#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
sub/360.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=900000,RESOLUTION=640x360
/root/360b.m3u8
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []variant.Variant{
		{Label: "1080p", URL: "https://other.example.com/1080.m3u8", Width: 1920, Height: 1080},
		{Label: "360p", URL: "https://cdn.example.com/videos/clip/sub/360.m3u8", Width: 640, Height: 360},
		{Label: "360p", URL: "https://cdn.example.com/root/360b.m3u8", Width: 640, Height: 360},
	}
	if diff := cmp.Diff(want, variants); diff != "" {
		t.Errorf("variants mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMaster_OrphanMarkers(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=300000
#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1920x1080
1080.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1000000
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(variants) != 1 {
		t.Fatalf("Expected 1 variant, got %d: %+v", len(variants), variants)
	}
	if variants[0].Label != "1080p" {
		t.Errorf("Label = %q, want 1080p (URI belongs to the nearest marker)", variants[0].Label)
	}
}

func TestParseMaster_NoAttributes(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:CODECS="avc1.4d401f"
plain.m3u8
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(variants) != 0 {
		t.Errorf("Expected no variants for a stream without resolution or bandwidth, got %+v", variants)
	}
}

func TestParseMaster_ZeroBandwidth(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=0
zero.m3u8
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(variants) != 0 {
		t.Errorf("Expected BANDWIDTH=0 to count as absent, got %+v", variants)
	}
}

func TestParseMaster_MediaPlaylist(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.9,
segment001.ts
#EXT-X-ENDLIST
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(variants) != 0 {
		t.Errorf("Expected no variants from a media playlist, got %d", len(variants))
	}
}

func TestParseMaster_MissingHeader(t *testing.T) {
	playlist := `#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720p.m3u8
`

	variants, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(variants) != 1 || variants[0].Label != "720p" {
		t.Errorf("variants = %+v, want one 720p variant", variants)
	}
}

func TestParseMaster_Malformed(t *testing.T) {
	if _, err := ParseMaster(strings.NewReader("not a playlist"), testManifestURL); err == nil {
		t.Error("Expected error for text without #EXTM3U")
	}
}

func TestParseMaster_Idempotent(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480
480.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=400000
low.m3u8
`

	first, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := ParseMaster(strings.NewReader(playlist), testManifestURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-parse differs (-first +second):\n%s", diff)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in     string
		w, h   int
		wantOK bool
	}{
		{"1280x720", 1280, 720, true},
		{"1920X1080", 1920, 1080, true},
		{"", 0, 0, false},
		{"720", 0, 0, false},
		{"axb", 0, 0, false},
		{"0x0", 0, 0, false},
	}

	for _, tt := range tests {
		w, h, ok := parseResolution(tt.in)
		if ok != tt.wantOK || w != tt.w || h != tt.h {
			t.Errorf("parseResolution(%q) = %d, %d, %v; want %d, %d, %v", tt.in, w, h, ok, tt.w, tt.h, tt.wantOK)
		}
	}
}

func TestIsAdaptiveManifestURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/master.m3u8", true},
		{"https://example.com/master.M3U8", true},
		{"https://example.com/master.m3u8?token=abc", true},
		{"https://example.com/clip.mp4", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAdaptiveManifestURL(tt.url); got != tt.want {
			t.Errorf("IsAdaptiveManifestURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, rel, want string
	}{
		{testManifestURL, "720p.m3u8", "https://cdn.example.com/videos/clip/720p.m3u8"},
		{testManifestURL, "../other/a.m3u8", "https://cdn.example.com/videos/other/a.m3u8"},
		{testManifestURL, "https://x.example.com/a.m3u8", "https://x.example.com/a.m3u8"},
	}

	for _, tt := range tests {
		got, err := resolveURL(tt.base, tt.rel)
		if err != nil {
			t.Fatalf("resolveURL(%q, %q) error: %v", tt.base, tt.rel, err)
		}
		if got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}
