/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"testing"

	"github.com/friendsincode/skald/internal/announce"
)

func TestSongMetadataOmitsAbsentTags(t *testing.T) {
	year := 1991
	song := Song{
		ID:    "a3c7",
		Title: "Nothing Else Matters",
		Album: "The Black Album",
		Year:  &year,
	}

	meta := song.Metadata()

	if got := meta[announce.TagTitle]; got != "Nothing Else Matters" {
		t.Errorf("title = %q", got)
	}
	if got := meta[announce.TagYear]; got != "1991" {
		t.Errorf("year = %q", got)
	}
	if _, ok := meta[announce.TagArtist]; ok {
		t.Error("absent artist must not be bound")
	}
	if _, ok := meta[announce.TagTrackNumber]; ok {
		t.Error("absent track number must not be bound")
	}
}

func TestAnnouncerProfileValid(t *testing.T) {
	tests := []struct {
		name    string
		profile AnnouncerProfile
		want    bool
	}{
		{"complete", AnnouncerProfile{Name: "Astrid", VoiceModel: "nb-no-wavenet-a", Language: "nb-NO"}, true},
		{"missing voice", AnnouncerProfile{Name: "Astrid", Language: "nb-NO"}, false},
		{"missing language", AnnouncerProfile{Name: "Astrid", VoiceModel: "m"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
