package media

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/variant"
)

// ShowRequest is the decoded payload of a show call.
type ShowRequest struct {
	Items []*Item
	// CurrentIndex is nil when the payload omitted it
	CurrentIndex *int
	Title        string
	// HasItems is false when the payload had no items array at all
	HasItems bool
}

type showPayload struct {
	Items        []itemPayload `json:"items"`
	CurrentIndex *int          `json:"currentIndex"`
	Title        string        `json:"title"`
}

type itemPayload struct {
	Source          string            `json:"source"`
	Kind            string            `json:"kind"`
	AltText         string            `json:"altText"`
	ThumbnailSource string            `json:"thumbnailSource"`
	QualityVariants []variant.Variant `json:"qualityVariants"`
}

// DecodeShowRequest decodes a JSON show payload.
// Entries missing a source or a recognizable kind are dropped.
func DecodeShowRequest(data []byte) (ShowRequest, error) {
	var p showPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ShowRequest{}, fmt.Errorf("decode show request: %w", err)
	}

	req := ShowRequest{
		CurrentIndex: p.CurrentIndex,
		Title:        p.Title,
		HasItems:     p.Items != nil,
	}

	for _, ip := range p.Items {
		source := strings.TrimSpace(ip.Source)
		kind := ParseKind(ip.Kind)
		if source == "" || kind == Unknown {
			continue
		}

		it := NewItem(source, kind, validVariants(ip.QualityVariants)...)
		it.AltText = ip.AltText
		if kind == Video {
			it.ThumbnailSource = ip.ThumbnailSource
		}
		req.Items = append(req.Items, it)
	}

	return req, nil
}

// validVariants keeps caller-supplied variants that carry both a label and a URL.
func validVariants(vs []variant.Variant) []variant.Variant {
	var out []variant.Variant
	for _, v := range vs {
		if v.Label == "" || v.URL == "" || v.Label == variant.Auto {
			continue
		}
		out = append(out, v)
	}
	return out
}
