// Package media defines gallery entries and the playback snapshots reported for them.
package media

import (
	"strings"
	"sync"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

// Kind represents the kind of gallery entry.
type Kind int

const (
	Unknown Kind = iota
	Image
	Video
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// ParseKind maps a payload kind string to a Kind. Matching is case-insensitive.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return Video
	case "image":
		return Image
	default:
		return Unknown
	}
}

// Item is one gallery entry.
//
// The quality variant list is populated at most once, either from the
// show request or by the manifest parser, and is read-only afterwards.
// Items must be shared by pointer.
type Item struct {
	Source          string
	Kind            Kind
	AltText         string
	ThumbnailSource string

	mu       sync.RWMutex
	variants []variant.Variant
}

// NewItem creates an item with optional caller-supplied variants.
func NewItem(source string, kind Kind, variants ...variant.Variant) *Item {
	it := &Item{Source: source, Kind: kind}
	if len(variants) > 0 {
		it.variants = variants
	}
	return it
}

// Variants returns the item's quality variants. The returned slice is
// shared and must not be modified.
func (it *Item) Variants() []variant.Variant {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return it.variants
}

// HasVariants reports whether the variant list has been populated.
func (it *Item) HasVariants() bool {
	it.mu.RLock()
	defer it.mu.RUnlock()
	return len(it.variants) > 0
}

// SetVariants populates the variant list if it is still empty.
// It returns false when vs is empty or the list was already populated.
func (it *Item) SetVariants(vs []variant.Variant) bool {
	if len(vs) == 0 {
		return false
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if len(it.variants) > 0 {
		return false
	}
	it.variants = vs
	return true
}

// PlaybackState is an immutable snapshot of playback.
type PlaybackState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	// Duration is zero until the decoder has parsed media headers
	Duration float64 `json:"duration"`
	// CurrentQuality is empty when no label is known
	CurrentQuality string `json:"currentQuality,omitempty"`
}
