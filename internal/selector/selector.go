/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selector turns playback moments into rendered announcements. It
// owns the moment-to-tense mapping and the playlist transition script; the
// grammar itself lives in the announce package.
package selector

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/script"
	"github.com/friendsincode/skald/internal/telemetry"
)

// Moment says where an announcement sits relative to playback.
type Moment string

const (
	MomentBefore Moment = "before"
	MomentAfter  Moment = "after"
)

// ParseMoment validates a caller-supplied moment string.
func ParseMoment(s string) (Moment, error) {
	switch Moment(strings.ToLower(s)) {
	case MomentBefore:
		return MomentBefore, nil
	case MomentAfter:
		return MomentAfter, nil
	default:
		return "", fmt.Errorf("unknown moment %q (want %q or %q)", s, MomentBefore, MomentAfter)
	}
}

// Tense maps the moment onto the grammar's tense: announcements after
// playback speak in the past, announcements before it in the present.
func (m Moment) Tense() announce.Tense {
	if m == MomentAfter {
		return announce.TensePast
	}
	return announce.TensePresent
}

// Selector renders announcements against the live script.
type Selector struct {
	scripts *script.Service
	bus     events.PubSub
	logger  zerolog.Logger
}

// New builds a selector over the given script service.
func New(scripts *script.Service, bus events.PubSub, logger zerolog.Logger) *Selector {
	return &Selector{
		scripts: scripts,
		bus:     bus,
		logger:  logger.With().Str("component", "selector").Logger(),
	}
}

// Announce renders one announcement for a song at the given moment. The
// entry point is drawn uniformly from the script's whole patterns using the
// same rng that drives expansion, so a fixed seed fixes the full output.
func (s *Selector) Announce(meta announce.Metadata, moment Moment, rng *rand.Rand) (string, error) {
	reg, policy, _ := s.scripts.Registry()
	entries := reg.EntryPoints()
	if len(entries) == 0 {
		return "", &announce.RenderError{Kind: announce.UnknownEntryPoint, Name: ""}
	}
	entry := entries[rng.Intn(len(entries))]
	return s.render(reg, policy, entry, meta, moment.Tense(), rng)
}

// AnnounceAt renders against a specific entry point instead of a random one.
func (s *Selector) AnnounceAt(entry string, meta announce.Metadata, moment Moment, rng *rand.Rand) (string, error) {
	reg, policy, _ := s.scripts.Registry()
	return s.render(reg, policy, entry, meta, moment.Tense(), rng)
}

func (s *Selector) render(reg *announce.Registry, policy announce.TagPolicy, entry string, meta announce.Metadata, tense announce.Tense, rng *rand.Rand) (string, error) {
	start := time.Now()
	text, err := reg.Render(entry, meta, tense, policy, rng)
	telemetry.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.RendersTotal.WithLabelValues(entry, "error").Inc()
		s.bus.Publish(events.EventAnnouncementFailed, events.Payload{
			"entry_point": entry,
			"error":       err.Error(),
		})
		return "", err
	}
	text = scrubNUL(text)

	telemetry.RendersTotal.WithLabelValues(entry, "ok").Inc()
	s.bus.Publish(events.EventAnnouncementRendered, events.Payload{
		"render_id":   uuid.NewString(),
		"entry_point": entry,
		"text":        text,
	})
	s.logger.Debug().Str("entry_point", entry).Str("text", text).Msg("announcement rendered")
	return text, nil
}

// Playlist renders the transition script around a track change: the song
// that just ended in the past tense, then the upcoming song, then the one
// after it introduced by a random conjunction. Absent songs are skipped;
// the surviving parts are joined with ". " so synthesis pauses naturally.
func (s *Selector) Playlist(prev, next, nextNext announce.Metadata, rng *rand.Rand) (string, error) {
	_, _, conjunctions := s.scripts.Registry()

	var parts []string
	if prev != nil {
		text, err := s.Announce(prev, MomentAfter, rng)
		if err != nil {
			return "", fmt.Errorf("previous song: %w", err)
		}
		parts = append(parts, text)
	}
	if next != nil {
		text, err := s.Announce(next, MomentBefore, rng)
		if err != nil {
			return "", fmt.Errorf("next song: %w", err)
		}
		parts = append(parts, text)
	}
	if nextNext != nil {
		text, err := s.Announce(nextNext, MomentBefore, rng)
		if err != nil {
			return "", fmt.Errorf("following song: %w", err)
		}
		conj := conjunctions[rng.Intn(len(conjunctions))]
		if conj != "" {
			text = conj + " " + text
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("playlist announcement: no songs given")
	}
	return strings.Join(parts, ". "), nil
}

// scrubNUL replaces NUL bytes that upset downstream speech synthesis with a
// space, so the words around a scrubbed byte stay separated.
func scrubNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", " ")
}
