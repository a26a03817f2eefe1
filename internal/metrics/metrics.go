// Package metrics provides Prometheus metrics for the media viewer core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label cardinality stays bounded: no session IDs, URLs or item indexes in labels.

var (
	// ManifestParsesTotal counts master manifest parses by result (ok, empty, error, cached).
	ManifestParsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaviewer_manifest_parses_total",
		Help: "Total number of master manifest parses, by result.",
	}, []string{"result"})

	// SessionsBoundTotal counts playback session binds by item kind.
	SessionsBoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaviewer_sessions_bound_total",
		Help: "Total number of playback session binds, by item kind.",
	}, []string{"kind"})

	// PlaybackFailuresTotal counts decoder failures by outcome (recoverable, terminal).
	PlaybackFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaviewer_playback_failures_total",
		Help: "Total number of playback failures, by outcome.",
	}, []string{"outcome"})

	// QualitySwitchesTotal counts accepted quality switches by mode (auto, manual).
	QualitySwitchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaviewer_quality_switches_total",
		Help: "Total number of quality switches, by mode.",
	}, []string{"mode"})

	// SwipesTotal counts released swipe gestures by outcome (commit, cancel).
	SwipesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaviewer_swipes_total",
		Help: "Total number of released swipe gestures, by outcome.",
	}, []string{"outcome"})

	// EventsDroppedTotal counts events discarded because a listener was closed.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaviewer_events_dropped_total",
		Help: "Total number of events discarded for closed listeners.",
	})

	// ActiveSessions is the number of live playback sessions (0 or 1).
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaviewer_active_sessions",
		Help: "Number of live playback sessions.",
	})
)
