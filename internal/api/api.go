/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the announcement engine over HTTP.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/script"
	"github.com/friendsincode/skald/internal/selector"
	"github.com/friendsincode/skald/internal/telemetry"
	"github.com/friendsincode/skald/internal/tts"
)

// API exposes HTTP handlers.
type API struct {
	db              *gorm.DB
	scripts         *script.Service
	selector        *selector.Selector
	tts             *tts.Client
	ssmlEnabled     bool
	announceEnabled bool
	adminToken      string
	bus             events.PubSub
	logger          zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, scripts *script.Service, sel *selector.Selector, ttsClient *tts.Client, ssmlEnabled, announceEnabled bool, adminToken string, bus events.PubSub, logger zerolog.Logger) *API {
	return &API{
		db:              db,
		scripts:         scripts,
		selector:        sel,
		tts:             ttsClient,
		ssmlEnabled:     ssmlEnabled,
		announceEnabled: announceEnabled,
		adminToken:      adminToken,
		bus:             bus,
		logger:          logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all API endpoints on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/entry-points", a.handleEntryPoints)
		r.Get("/songs/{songID}", a.handleSongGet)

		r.Route("/announcements", func(r chi.Router) {
			r.Use(a.requireAnnouncements)
			r.Post("/render", a.handleRender)
			r.Post("/playlist", a.handlePlaylist)
			r.Post("/speech", a.handleSpeech)
		})

		r.Route("/script", func(r chi.Router) {
			r.Post("/validate", a.handleScriptValidate)
			r.With(a.requireAdmin).Post("/reload", a.handleScriptReload)
		})
	})
}

// requireAnnouncements rejects announcement traffic when the station has
// switched announcements off in its stored settings.
func (a *API) requireAnnouncements(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.announceEnabled {
			writeError(w, http.StatusServiceUnavailable, "announcements_disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin guards mutating endpoints with the static admin token.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken == "" {
			// No token configured outside production; config rejects that
			// combination for production environments.
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	reg, _, _ := a.scripts.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"script_loaded_at": a.scripts.LoadedAt().UTC(),
		"entry_points":     len(reg.EntryPoints()),
	})
}

func (a *API) handleEntryPoints(w http.ResponseWriter, r *http.Request) {
	reg, _, _ := a.scripts.Registry()
	writeJSON(w, http.StatusOK, map[string]any{"entry_points": reg.EntryPoints()})
}

func (a *API) handleSongGet(w http.ResponseWriter, r *http.Request) {
	songID := chi.URLParam(r, "songID")
	song, ok := a.loadSong(w, r, songID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, song)
}

type renderRequest struct {
	SongID     string            `json:"song_id"`
	Metadata   map[string]string `json:"metadata"`
	Moment     string            `json:"moment"`
	EntryPoint string            `json:"entry_point"`
	Seed       *int64            `json:"seed"`
	SSML       bool              `json:"ssml"`
}

func (a *API) handleRender(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "skald/api", "announcements.render")
	defer span.End()
	r = r.WithContext(ctx)

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	moment, err := selector.ParseMoment(req.Moment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_moment")
		return
	}

	var meta announce.Metadata
	switch {
	case req.SongID != "":
		song, ok := a.loadSong(w, r, req.SongID)
		if !ok {
			return
		}
		meta = song.Metadata()
	case len(req.Metadata) > 0:
		meta = announce.Metadata(req.Metadata)
	default:
		writeError(w, http.StatusBadRequest, "song_id_or_metadata_required")
		return
	}

	if req.SSML {
		meta = a.ssmlEnvelope(r).WrapMetadata(meta)
	}

	rng := newRand(req.Seed)
	var text string
	if req.EntryPoint != "" {
		text, err = a.selector.AnnounceAt(req.EntryPoint, meta, moment, rng)
	} else {
		text, err = a.selector.Announce(meta, moment, rng)
	}
	if err != nil {
		a.writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type playlistRequest struct {
	Prev     string `json:"prev"`
	Next     string `json:"next"`
	NextNext string `json:"next_next"`
	Seed     *int64 `json:"seed"`
	SSML     bool   `json:"ssml"`
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.StartSpan(r.Context(), "skald/api", "announcements.playlist")
	defer span.End()
	r = r.WithContext(ctx)

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Prev == "" && req.Next == "" && req.NextNext == "" {
		writeError(w, http.StatusBadRequest, "no_songs_given")
		return
	}

	var env tts.Envelope
	if req.SSML {
		env = a.ssmlEnvelope(r)
	}

	var prev, next, nextNext announce.Metadata
	for _, part := range []struct {
		id   string
		meta *announce.Metadata
	}{
		{req.Prev, &prev},
		{req.Next, &next},
		{req.NextNext, &nextNext},
	} {
		if part.id == "" {
			continue
		}
		song, ok := a.loadSong(w, r, part.id)
		if !ok {
			return
		}
		*part.meta = env.WrapMetadata(song.Metadata())
	}

	text, err := a.selector.Playlist(prev, next, nextNext, newRand(req.Seed))
	if err != nil {
		a.writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type speechRequest struct {
	Script string `json:"script"`
}

func (a *API) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Script == "" {
		writeError(w, http.StatusBadRequest, "script_required")
		return
	}
	if a.tts == nil || !a.tts.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "tts_not_configured")
		return
	}

	packet := tts.NewEnvelope(a.ssmlEnabled, a.announcerHost(r)).Wrap(req.Script)
	contentType, audio, err := a.tts.Synthesize(r.Context(), packet)
	if err != nil {
		a.logger.Error().Err(err).Msg("speech synthesis failed")
		writeError(w, http.StatusBadGateway, "synthesis_failed")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	a.bus.Publish(events.EventSpeechSynthesized, events.Payload{
		"bytes":        len(audio),
		"content_type": contentType,
	})
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// ssmlEnvelope builds the envelope used to wrap metadata with say-as hints.
// A disabled envelope passes metadata through untouched.
func (a *API) ssmlEnvelope(r *http.Request) tts.Envelope {
	return tts.NewEnvelope(a.ssmlEnabled, a.announcerHost(r))
}

// announcerHost returns the first configured announcer profile, or a zero
// profile which disables the SSML envelope.
func (a *API) announcerHost(r *http.Request) models.AnnouncerProfile {
	var host models.AnnouncerProfile
	if a.db == nil {
		return host
	}
	if err := a.db.WithContext(r.Context()).Order("position asc").First(&host).Error; err != nil {
		return models.AnnouncerProfile{}
	}
	return host
}

type scriptValidateRequest struct {
	Script string `json:"script"`
}

func (a *API) handleScriptValidate(w http.ResponseWriter, r *http.Request) {
	var req scriptValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	doc, err := script.Parse([]byte(req.Script))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	reg, _, _, err := doc.Compile()
	if err != nil {
		resp := map[string]any{"valid": false, "error": err.Error()}
		var verr *announce.ValidationError
		if errors.As(err, &verr) {
			resp["kind"] = verr.Kind
			if verr.Name != "" {
				resp["name"] = verr.Name
			}
			if verr.Reference != "" {
				resp["reference"] = verr.Reference
			}
			if verr.Fragment != "" {
				resp["fragment"] = verr.Fragment
			}
			if len(verr.Cycle) > 0 {
				resp["cycle"] = verr.Cycle
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":        true,
		"entry_points": reg.EntryPoints(),
	})
}

func (a *API) handleScriptReload(w http.ResponseWriter, r *http.Request) {
	if err := a.scripts.Reload(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"reloaded": false,
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":  true,
		"loaded_at": a.scripts.LoadedAt().UTC(),
	})
}

// loadSong fetches a song row, writing the error response itself on failure.
func (a *API) loadSong(w http.ResponseWriter, r *http.Request, songID string) (models.Song, bool) {
	var song models.Song
	if songID == "" {
		writeError(w, http.StatusBadRequest, "song_id_required")
		return song, false
	}
	if a.db == nil {
		writeError(w, http.StatusServiceUnavailable, "database_unavailable")
		return song, false
	}
	result := a.db.WithContext(r.Context()).First(&song, "id = ?", songID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "song_not_found")
		return song, false
	}
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Str("song_id", songID).Msg("get song failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return song, false
	}
	return song, true
}

// writeRenderError maps engine render failures onto HTTP statuses: unknown
// roots are a caller addressing problem, fragment exhaustion a conflict
// between the script and the song's metadata.
func (a *API) writeRenderError(w http.ResponseWriter, err error) {
	var rerr *announce.RenderError
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case announce.UnknownEntryPoint:
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "unknown_entry_point", "entry_point": rerr.Name,
			})
			return
		case announce.NoAvailableFragment:
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "no_available_fragment", "pattern": rerr.Name,
			})
			return
		}
	}
	a.logger.Error().Err(err).Msg("render failed")
	writeError(w, http.StatusInternalServerError, "render_failed")
}

// newRand builds the render rng. A caller-supplied seed pins the whole
// announcement for reproducibility.
func newRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
