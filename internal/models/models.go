/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strconv"
	"time"

	"github.com/friendsincode/skald/internal/announce"
)

// Song is one indexed audio file with the tag values announcements draw on.
// Numeric tags are pointers so an absent tag is distinguishable from zero.
type Song struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Path        string `gorm:"uniqueIndex"`
	Parent      string `gorm:"index"`
	TrackNumber *int
	DiscNumber  *int
	Title       string `gorm:"index"`
	Artist      string `gorm:"index"`
	AlbumArtist string
	Year        *int
	Album       string `gorm:"index"`
	ArtworkPath string
	DurationSec *int
	Lyricist    string
	Composer    string
	Genre       string
	Label       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Metadata builds the read-only tag binding the expansion engine consumes.
// Absent tags are simply left out of the map.
func (s *Song) Metadata() announce.Metadata {
	meta := announce.Metadata{}
	put := func(tag, value string) {
		if value != "" {
			meta[tag] = value
		}
	}
	putInt := func(tag string, value *int) {
		if value != nil {
			meta[tag] = strconv.Itoa(*value)
		}
	}

	put(announce.TagID, s.ID)
	put(announce.TagPath, s.Path)
	put(announce.TagParent, s.Parent)
	putInt(announce.TagTrackNumber, s.TrackNumber)
	putInt(announce.TagDiscNumber, s.DiscNumber)
	put(announce.TagTitle, s.Title)
	put(announce.TagArtist, s.Artist)
	put(announce.TagAlbumArtist, s.AlbumArtist)
	putInt(announce.TagYear, s.Year)
	put(announce.TagAlbum, s.Album)
	put(announce.TagArtwork, s.ArtworkPath)
	putInt(announce.TagDuration, s.DurationSec)
	put(announce.TagLyricist, s.Lyricist)
	put(announce.TagComposer, s.Composer)
	put(announce.TagGenre, s.Genre)
	put(announce.TagLabel, s.Label)
	return meta
}

// AnnouncerProfile is a synthetic host voice used when SSML is enabled.
type AnnouncerProfile struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Name       string `gorm:"uniqueIndex"`
	VoiceModel string
	Language   string `gorm:"type:varchar(16)"`
	Position   int    // ordering; the first profile hosts the show
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Valid reports whether the profile can drive SSML synthesis.
func (p *AnnouncerProfile) Valid() bool {
	return p.Name != "" && p.VoiceModel != "" && p.Language != ""
}

// ScriptSettings is the single persisted row of operator-tunable announcement
// settings. Environment variables win over the stored values, so the row only
// fills in what the deployment leaves unset.
type ScriptSettings struct {
	ID              uint `gorm:"primaryKey"`
	ScriptPath      string
	EnableByDefault bool
	TTSURL          string
	TTSKey          string
	SSMLEnabled     bool
	UpdatedAt       time.Time
}
