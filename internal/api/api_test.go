/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/script"
	"github.com/friendsincode/skald/internal/selector"
	"github.com/friendsincode/skald/internal/tts"
)

const testScript = `
patterns:
  - name: opener
    whole: true
    fragments:
      - "^listening_to^ ^title^"
tense_patterns:
  - name: listening_to
    past: "You were listening to"
    present: "You are listening to"
conjunctions:
  - "Then"
tags_to_announce:
  title: required
`

type testEnv struct {
	api     *API
	scripts *script.Service
	router  *chi.Mux
	path    string
}

func newTestEnv(t *testing.T, db *gorm.DB, ttsClient *tts.Client, adminToken string) *testEnv {
	t.Helper()
	return newTestEnvWith(t, db, ttsClient, adminToken, false, true)
}

func newTestEnvWith(t *testing.T, db *gorm.DB, ttsClient *tts.Client, adminToken string, ssmlEnabled, announceEnabled bool) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(testScript), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	svc, err := script.NewService(path, events.NewBus(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	sel := selector.New(svc, events.NewBus(), zerolog.Nop())
	a := New(db, svc, sel, ttsClient, ssmlEnabled, announceEnabled, adminToken, events.NewBus(), zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return &testEnv{api: a, scripts: svc, router: r, path: path}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Song{}, &models.AnnouncerProfile{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func (e *testEnv) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["entry_points"].(float64) != 1 {
		t.Errorf("entry_points = %v", body["entry_points"])
	}
}

func TestEntryPoints(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodGet, "/api/v1/entry-points", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	entries := body["entry_points"].([]any)
	if len(entries) != 1 || entries[0] != "opener" {
		t.Errorf("entry_points = %v", entries)
	}
}

func TestRenderInlineMetadata(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"metadata":{"title":"Aces High"},"moment":"after","seed":1}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["text"] != "You were listening to Aces High" {
		t.Errorf("text = %q", body["text"])
	}
}

func TestRenderRequestValidation(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"bad moment", `{"metadata":{"title":"x"},"moment":"during"}`, http.StatusBadRequest},
		{"no song or metadata", `{"moment":"before"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/announcements/render", tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRenderUnknownEntryPoint(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"metadata":{"title":"x"},"moment":"before","entry_point":"nope"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeJSON(t, rec)["error"] != "unknown_entry_point" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRenderNoAvailableFragment(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"metadata":{"artist":"x"},"moment":"before"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["error"] != "no_available_fragment" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRenderFromSongRow(t *testing.T) {
	db := openTestDB(t)
	song := models.Song{ID: "song-1", Path: "/music/aces.flac", Title: "Aces High"}
	if err := db.Create(&song).Error; err != nil {
		t.Fatalf("create song: %v", err)
	}
	env := newTestEnv(t, db, nil, "")

	rec := env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"song_id":"song-1","moment":"before","seed":1}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["text"] != "You are listening to Aces High" {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"song_id":"missing","moment":"before"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing song status = %d", rec.Code)
	}
}

func TestRenderSSMLMetadata(t *testing.T) {
	db := openTestDB(t)
	host := models.AnnouncerProfile{ID: "h1", Name: "Freya", VoiceModel: "en-US-Neural", Language: "en-US", Position: 1}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	env := newTestEnvWith(t, db, nil, "", true, true)

	rec := env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"metadata":{"title":"Aces High"},"moment":"before","seed":1,"ssml":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	want := `You are listening to <say-as interpret-as="name">Aces High</say-as>`
	if got := decodeJSON(t, rec)["text"]; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}

	// Without the flag the same request reads the raw title.
	rec = env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"metadata":{"title":"Aces High"},"moment":"before","seed":1}`, nil)
	if got := decodeJSON(t, rec)["text"]; got != "You are listening to Aces High" {
		t.Errorf("text = %q", got)
	}
}

func TestRenderSSMLRequiresServerSetting(t *testing.T) {
	db := openTestDB(t)
	host := models.AnnouncerProfile{ID: "h1", Name: "Freya", VoiceModel: "en-US-Neural", Language: "en-US", Position: 1}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	env := newTestEnv(t, db, nil, "")

	rec := env.do(t, http.MethodPost, "/api/v1/announcements/render",
		`{"metadata":{"title":"Aces High"},"moment":"before","seed":1,"ssml":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec)["text"]; got != "You are listening to Aces High" {
		t.Errorf("text = %q, want the raw title when SSML is off server-side", got)
	}
}

func TestPlaylistSSMLMetadata(t *testing.T) {
	db := openTestDB(t)
	host := models.AnnouncerProfile{ID: "h1", Name: "Freya", VoiceModel: "en-US-Neural", Language: "en-US", Position: 1}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	song := models.Song{ID: "s1", Path: "/music/1.flac", Title: "Aces High"}
	if err := db.Create(&song).Error; err != nil {
		t.Fatalf("create song: %v", err)
	}
	env := newTestEnvWith(t, db, nil, "", true, true)

	rec := env.do(t, http.MethodPost, "/api/v1/announcements/playlist",
		`{"next":"s1","seed":1,"ssml":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	want := `You are listening to <say-as interpret-as="name">Aces High</say-as>`
	if got := decodeJSON(t, rec)["text"]; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestAnnouncementsDisabled(t *testing.T) {
	env := newTestEnvWith(t, nil, nil, "", false, false)

	for _, target := range []string{
		"/api/v1/announcements/render",
		"/api/v1/announcements/playlist",
		"/api/v1/announcements/speech",
	} {
		rec := env.do(t, http.MethodPost, target, `{}`, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want %d", target, rec.Code, http.StatusServiceUnavailable)
		}
		if decodeJSON(t, rec)["error"] != "announcements_disabled" {
			t.Errorf("%s body = %s", target, rec.Body.String())
		}
	}

	// Non-announcement endpoints stay reachable.
	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestPlaylist(t *testing.T) {
	db := openTestDB(t)
	for _, s := range []models.Song{
		{ID: "s1", Path: "/music/1.flac", Title: "Aces High"},
		{ID: "s2", Path: "/music/2.flac", Title: "Run to the Hills"},
		{ID: "s3", Path: "/music/3.flac", Title: "The Trooper"},
	} {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("create song: %v", err)
		}
	}
	env := newTestEnv(t, db, nil, "")

	rec := env.do(t, http.MethodPost, "/api/v1/announcements/playlist",
		`{"prev":"s1","next":"s2","next_next":"s3","seed":7}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	want := "You were listening to Aces High. " +
		"You are listening to Run to the Hills. " +
		"Then You are listening to The Trooper"
	if got := decodeJSON(t, rec)["text"]; got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestPlaylistRejectsEmptyRequest(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodPost, "/api/v1/announcements/playlist", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSongLookupWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodGet, "/api/v1/songs/s1", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	env := newTestEnv(t, nil, tts.NewClient(srv.URL, "", zerolog.Nop()), "")
	rec := env.do(t, http.MethodPost, "/api/v1/announcements/speech", `{"script":"hello"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "audio/wav" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "RIFFdata" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestSpeechNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")
	rec := env.do(t, http.MethodPost, "/api/v1/announcements/speech", `{"script":"hello"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestScriptValidate(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")

	valid := `{"script":"patterns:\n  - name: opener\n    whole: true\n    fragments:\n      - \"Now playing ^title^\""}`
	rec := env.do(t, http.MethodPost, "/api/v1/script/validate", valid, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["valid"] != true {
		t.Errorf("body = %s", rec.Body.String())
	}

	broken := `{"script":"patterns:\n  - name: opener\n    whole: true\n    fragments:\n      - \"Now playing ^nope^\""}`
	rec = env.do(t, http.MethodPost, "/api/v1/script/validate", broken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["valid"] != false || body["kind"] != "unknown_reference" || body["reference"] != "nope" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestScriptReloadAuth(t *testing.T) {
	env := newTestEnv(t, nil, nil, "sekrit")

	rec := env.do(t, http.MethodPost, "/api/v1/script/reload", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/script/reload", "",
		http.Header{"Authorization": []string{"Bearer sekrit"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("with token status = %d body = %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["reloaded"] != true {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestScriptReloadPicksUpEdits(t *testing.T) {
	env := newTestEnv(t, nil, nil, "")

	edited := strings.Replace(testScript, "opener", "renamed", 1)
	if err := os.WriteFile(env.path, []byte(edited), 0o644); err != nil {
		t.Fatalf("rewrite script: %v", err)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/script/reload", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/entry-points", "", nil)
	entries := decodeJSON(t, rec)["entry_points"].([]any)
	if len(entries) != 1 || entries[0] != "renamed" {
		t.Errorf("entry_points = %v", entries)
	}
}
