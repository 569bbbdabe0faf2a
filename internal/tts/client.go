/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tts talks to the speech synthesis endpoint and prepares scripts
// for it, including the optional SSML envelope.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/telemetry"
)

// DefaultQueryKey is the query parameter carrying the script text.
const DefaultQueryKey = "text"

const synthesisTimeout = 60 * time.Second

// Client fetches synthesized speech over HTTP. Synthesis can take a long
// time for long scripts, so the client carries a generous timeout and the
// caller's context can cut it shorter.
type Client struct {
	url    string
	key    string
	http   *http.Client
	logger zerolog.Logger
}

// NewClient builds a synthesis client. An empty key falls back to
// DefaultQueryKey.
func NewClient(url, key string, logger zerolog.Logger) *Client {
	if key == "" {
		key = DefaultQueryKey
	}
	return &Client{
		url:    url,
		key:    key,
		http:   &http.Client{Timeout: synthesisTimeout},
		logger: logger.With().Str("component", "tts").Logger(),
	}
}

// Enabled reports whether a synthesis endpoint is configured.
func (c *Client) Enabled() bool { return c.url != "" }

// Synthesize sends the script to the endpoint and returns the response
// content type and audio bytes.
func (c *Client) Synthesize(ctx context.Context, script string) (string, []byte, error) {
	if !c.Enabled() {
		return "", nil, fmt.Errorf("speech synthesis not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		telemetry.SpeechRequests.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set(c.key, script)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "Skald/1.0")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.SpeechRequests.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.SpeechRequests.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("synthesis endpoint returned %s", resp.Status)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.SpeechRequests.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("read synthesis response: %w", err)
	}

	telemetry.SpeechRequests.WithLabelValues("ok").Inc()
	c.logger.Debug().
		Int("bytes", len(audio)).
		Dur("elapsed", time.Since(start)).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("speech synthesized")
	return resp.Header.Get("Content-Type"), audio, nil
}
