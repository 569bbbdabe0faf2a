/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/models"
)

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("text"); got != "hello there" {
			t.Errorf("query text = %q", got)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zerolog.Nop())
	contentType, audio, err := client.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if contentType != "audio/wav" {
		t.Errorf("content type = %q", contentType)
	}
	if string(audio) != "RIFFdata" {
		t.Errorf("audio = %q", audio)
	}
}

func TestSynthesizeCustomQueryKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("script"); got != "hi" {
			t.Errorf("query script = %q", got)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "script", zerolog.Nop())
	if _, _, err := client.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
}

func TestSynthesizeEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zerolog.Nop())
	if _, _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("Synthesize() error = nil on 502 response")
	}
}

func TestSynthesizeUnconfigured(t *testing.T) {
	client := NewClient("", "", zerolog.Nop())
	if client.Enabled() {
		t.Error("Enabled() = true with no URL")
	}
	if _, _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("Synthesize() error = nil with no URL")
	}
}

func TestSynthesizeHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(srv.URL, "", zerolog.Nop())
	if _, _, err := client.Synthesize(ctx, "hi"); err == nil {
		t.Fatal("Synthesize() error = nil with canceled context")
	}
}

func host() models.AnnouncerProfile {
	return models.AnnouncerProfile{Name: "Freya", VoiceModel: "en-US-Neural", Language: "en-US"}
}

func TestEnvelopeWrap(t *testing.T) {
	env := NewEnvelope(true, host())
	got := env.Wrap("You are listening to Aces High")
	for _, want := range []string{
		"<speak version='1.0'",
		"xml:lang='en-US'>",
		"<voice name='en-US-Neural'>",
		"You are listening to Aces High",
		"</voice></speak>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Wrap() = %q, missing %q", got, want)
		}
	}
}

func TestEnvelopeDisabledPassesThrough(t *testing.T) {
	env := NewEnvelope(false, host())
	if got := env.Wrap("plain"); got != "plain" {
		t.Errorf("Wrap() = %q, want passthrough", got)
	}
}

func TestEnvelopeIncompleteHostDisables(t *testing.T) {
	env := NewEnvelope(true, models.AnnouncerProfile{Name: "Freya"})
	if env.Enabled() {
		t.Error("envelope enabled without a complete host profile")
	}
}

func TestWrapMetadata(t *testing.T) {
	env := NewEnvelope(true, host())
	meta := announce.Metadata{
		"title":        "Aces High",
		"year":         "1984",
		"track_number": "1",
		"path":         "/music/aces.flac",
	}
	got := env.WrapMetadata(meta)

	if got["title"] != `<say-as interpret-as="name">Aces High</say-as>` {
		t.Errorf("title = %q", got["title"])
	}
	if got["year"] != `<say-as interpret-as="date">1984</say-as>` {
		t.Errorf("year = %q", got["year"])
	}
	if got["track_number"] != `<say-as interpret-as="cardinal">1</say-as>` {
		t.Errorf("track_number = %q", got["track_number"])
	}
	if got["path"] != "/music/aces.flac" {
		t.Errorf("path = %q, want unwrapped", got["path"])
	}
	if meta["title"] != "Aces High" {
		t.Error("WrapMetadata mutated its input")
	}
}
