// Package quality labels the stream a decoder is currently producing.
//
// Decoded dimensions rarely match a declared resolution exactly, so the
// match is a tolerance heuristic rather than ground truth.
package quality

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

// closeMatch is the height difference accepted immediately, before the
// rest of the list is considered.
const closeMatch = 10

var (
	progressiveLabel = regexp.MustCompile(`(\d+)\s*p`)
	bareHeight       = regexp.MustCompile(`\b(\d{3,4})\b`)
)

// ResolveActiveLabel matches decoded dimensions to a variant label.
// It returns false when no label can be attributed.
func ResolveActiveLabel(decodedWidth, decodedHeight int, variants []variant.Variant) (string, bool) {
	if decodedHeight <= 0 || len(variants) == 0 {
		return "", false
	}

	best := -1
	bestDiff := 0
	for i, v := range variants {
		h := KnownHeight(v)
		if h <= 0 {
			continue
		}

		diff := abs(h - decodedHeight)
		if diff <= closeMatch {
			return v.Label, true
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}

	// The nearest variant wins whether it is 20px or 200px away; a loose
	// label beats none.
	if best >= 0 {
		return variants[best].Label, true
	}

	return matchTier(decodedWidth, decodedHeight, variants)
}

// KnownHeight returns the declared height of v, or one derived from a
// label like "720p" when none was declared. Zero means unknown.
func KnownHeight(v variant.Variant) int {
	if v.Height > 0 {
		return v.Height
	}
	return heightFromLabel(v.Label)
}

func heightFromLabel(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))

	if m := progressiveLabel.FindStringSubmatch(label); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil && h > 0 {
			return h
		}
	}

	if m := bareHeight.FindStringSubmatch(label); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil && h >= 300 && h <= 2500 {
			return h
		}
	}

	return 0
}

// tierBand is a decoded-size window that a named quality label covers.
type tierBand struct {
	names                []string
	minHeight, maxHeight int
	minPixels, maxPixels int
}

// Bands are checked against each label in this order; the first name
// group a label contains decides its band.
var tierBands = []tierBand{
	{names: []string{"4k", "2160"}, minHeight: 2000, minPixels: 3_500_000},
	{names: []string{"1080", "full hd"}, minHeight: 1000, maxHeight: 2000, minPixels: 1_800_000, maxPixels: 3_500_000},
	{names: []string{"720", "hd"}, minHeight: 650, maxHeight: 1000, minPixels: 800_000, maxPixels: 1_800_000},
	{names: []string{"480", "sd"}, minHeight: 400, maxHeight: 650, minPixels: 300_000, maxPixels: 800_000},
	{names: []string{"360"}, minHeight: 300, maxHeight: 400, minPixels: 100_000, maxPixels: 300_000},
}

func (b tierBand) covers(width, height int) bool {
	pixels := width * height
	if height < b.minHeight || pixels < b.minPixels {
		return false
	}
	if b.maxHeight > 0 && height >= b.maxHeight {
		return false
	}
	if b.maxPixels > 0 && pixels >= b.maxPixels {
		return false
	}
	return true
}

// matchTier handles variants with no usable height, such as bandwidth tiers.
func matchTier(width, height int, variants []variant.Variant) (string, bool) {
	for _, v := range variants {
		label := strings.ToLower(v.Label)
		for _, band := range tierBands {
			if !containsAny(label, band.names) {
				continue
			}
			if band.covers(width, height) {
				return v.Label, true
			}
			break
		}
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
