// Package variant defines the quality renditions discovered in an HLS master playlist.
package variant

import "strconv"

// Auto is the quality label meaning "let the decoder choose".
// It is never stored on a Variant; it is only used when selecting quality.
const Auto = "Auto"

// Bandwidth tier labels used when a stream declares no resolution.
const (
	TierSD     = "SD"
	TierHD     = "HD"
	TierFullHD = "Full HD"
)

// Bandwidth tier boundaries in bits per second.
const (
	sdCeiling = 500_000
	hdCeiling = 2_000_000
)

// Variant represents a single playable rendition of a video.
type Variant struct {
	// Label is the user-facing quality name, e.g. "1080p", "HD" or "Full HD"
	Label string `json:"label"`

	// URL is the absolute URL of the rendition's media playlist
	URL string `json:"url"`

	// Width and Height are the declared pixel dimensions.
	// Zero when the stream declared no RESOLUTION attribute.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// HasResolution reports whether the variant declared explicit dimensions.
func (v Variant) HasResolution() bool {
	return v.Height > 0
}

// ResolutionLabel returns the label for an explicit resolution, e.g. "720p".
func ResolutionLabel(height int) string {
	return strconv.Itoa(height) + "p"
}

// BandwidthLabel classifies a declared bitrate into a coarse tier.
func BandwidthLabel(bandwidth int) string {
	switch {
	case bandwidth < sdCeiling:
		return TierSD
	case bandwidth < hdCeiling:
		return TierHD
	default:
		return TierFullHD
	}
}

// Labels returns the labels of vs in order, including duplicates.
func Labels(vs []Variant) []string {
	labels := make([]string, 0, len(vs))
	for _, v := range vs {
		labels = append(labels, v.Label)
	}
	return labels
}

// Find returns the first variant whose label equals label exactly.
func Find(vs []Variant, label string) (Variant, bool) {
	for _, v := range vs {
		if v.Label == label {
			return v, true
		}
	}
	return Variant{}, false
}
