/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skald",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP API request duration.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skald",
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP API requests.",
	})

	// RendersTotal counts announcement renders by entry point and outcome.
	RendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Subsystem: "announce",
		Name:      "renders_total",
		Help:      "Announcement renders by entry point and outcome.",
	}, []string{"entry_point", "status"})

	// RenderDuration observes expansion latency. Renders are pure in-memory
	// work, so the buckets sit well below the API ones.
	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skald",
		Subsystem: "announce",
		Name:      "render_duration_seconds",
		Help:      "Announcement expansion duration.",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// ScriptReloads counts script compile attempts by outcome.
	ScriptReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Subsystem: "script",
		Name:      "reloads_total",
		Help:      "Script compile attempts by outcome.",
	}, []string{"status"})

	// SpeechRequests counts TTS synthesis calls by outcome.
	SpeechRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skald",
		Subsystem: "tts",
		Name:      "speech_requests_total",
		Help:      "Speech synthesis requests by outcome.",
	}, []string{"status"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
