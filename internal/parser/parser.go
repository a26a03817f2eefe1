// Package parser discovers quality variants in HLS master playlists.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

const (
	headerTag    = "#EXTM3U"
	streamInfTag = "#EXT-X-STREAM-INF:"
)

// IsAdaptiveManifestURL reports whether a source looks like an HLS playlist.
func IsAdaptiveManifestURL(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), ".m3u8")
}

// ParseMaster decodes a master playlist and returns its variants in
// declaration order. Relative variant URIs are resolved against manifestURL.
//
// A media playlist yields no variants and no error.
func ParseMaster(r io.Reader, manifestURL string) ([]variant.Variant, error) {
	if _, err := url.Parse(manifestURL); err != nil {
		return nil, fmt.Errorf("invalid manifest URL: %w", err)
	}

	text, err := dropOrphanStreamInf(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	if listType != m3u8.MASTER {
		return nil, nil
	}

	masterPlaylist, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	var variants []variant.Variant
	for _, v := range masterPlaylist.Variants {
		if v == nil || v.Iframe || v.URI == "" {
			continue
		}

		label, width, height := deriveLabel(v.VariantParams)
		if label == "" {
			continue
		}

		variantURL, err := resolveURL(manifestURL, v.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve variant URL: %w", err)
		}

		variants = append(variants, variant.Variant{
			Label:  label,
			URL:    variantURL,
			Width:  width,
			Height: height,
		})
	}

	return variants, nil
}

// deriveLabel picks the label for one stream: explicit resolution first,
// then bandwidth tier. Streams declaring neither get no label and are left
// out of the variant list, since "Auto" is never a stored variant.
// BANDWIDTH=0 is indistinguishable from an absent attribute after decoding
// and counts as absent.
func deriveLabel(p m3u8.VariantParams) (label string, width, height int) {
	if w, h, ok := parseResolution(p.Resolution); ok {
		return variant.ResolutionLabel(h), w, h
	}

	if p.Bandwidth > 0 {
		return variant.BandwidthLabel(int(p.Bandwidth)), 0, 0
	}

	return "", 0, 0
}

// parseResolution parses a WIDTHxHEIGHT attribute value.
func parseResolution(s string) (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, false
	}

	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, false
	}

	return width, height, true
}

// dropOrphanStreamInf removes stream-info markers that are not followed by
// a URI line before the next marker or the end of input, so each marker
// that reaches the decoder owns exactly the URI after it. Blank lines are
// dropped as well. A missing #EXTM3U header is restored when at least one
// marker survives.
func dropOrphanStreamInf(r io.Reader) (string, error) {
	var lines []string
	pending := -1
	owned := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, streamInfTag) {
			if pending >= 0 {
				lines[pending] = ""
			}
			pending = len(lines)
		} else if !strings.HasPrefix(line, "#") {
			if pending >= 0 {
				owned++
			}
			pending = -1
		}

		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	if pending >= 0 {
		lines[pending] = ""
	}

	var b strings.Builder
	if owned > 0 && (len(lines) == 0 || lines[0] != headerTag) {
		b.WriteString(headerTag)
		b.WriteString("\n")
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	if rel.IsAbs() {
		return relativeURL, nil
	}

	return base.ResolveReference(rel).String(), nil
}
