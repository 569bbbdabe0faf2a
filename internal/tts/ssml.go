/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tts

import (
	"fmt"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/models"
)

const (
	ssmlHeaderOpen = `<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis'` +
		` xmlns:mstts='http://www.w3.org/2001/mstts' xmlns:emo='http://www.w3.org/2009/10/emotionml' xml:lang=`
	ssmlVoiceOpen    = `<voice name=`
	ssmlElementClose = `>`
	ssmlVoiceFooter  = `</voice>`
	ssmlFooter       = `</speak>`
)

// Envelope wraps finished scripts in a speak/voice SSML envelope for the
// announcing host. A disabled envelope passes scripts through untouched.
type Envelope struct {
	enabled bool
	host    models.AnnouncerProfile
}

// NewEnvelope builds an envelope. SSML only activates when enabled and the
// host profile is complete, since the voice and language attributes come
// from the profile.
func NewEnvelope(enabled bool, host models.AnnouncerProfile) Envelope {
	return Envelope{enabled: enabled && host.Valid(), host: host}
}

// Enabled reports whether scripts will be wrapped.
func (e Envelope) Enabled() bool { return e.enabled }

// Wrap produces the synthesis packet for a script.
func (e Envelope) Wrap(script string) string {
	if !e.enabled {
		return script
	}
	return fmt.Sprintf("%s'%s'%s%s'%s'%s%s%s%s",
		ssmlHeaderOpen, e.host.Language, ssmlElementClose,
		ssmlVoiceOpen, e.host.VoiceModel, ssmlElementClose,
		script,
		ssmlVoiceFooter, ssmlFooter)
}

// WrapMetadata returns a copy of the metadata with say-as hints applied:
// names read as names, the year as a date, and counts as cardinals. With
// SSML disabled the input is returned unchanged.
func (e Envelope) WrapMetadata(meta announce.Metadata) announce.Metadata {
	if !e.enabled {
		return meta
	}
	wrapped := make(announce.Metadata, len(meta))
	for tag, value := range meta {
		switch tag {
		case announce.TagTitle, announce.TagArtist, announce.TagAlbumArtist,
			announce.TagAlbum, announce.TagLyricist, announce.TagComposer,
			announce.TagGenre, announce.TagLabel:
			wrapped[tag] = sayAs("name", value)
		case announce.TagYear:
			wrapped[tag] = sayAs("date", value)
		case announce.TagTrackNumber, announce.TagDiscNumber, announce.TagDuration:
			wrapped[tag] = sayAs("cardinal", value)
		default:
			wrapped[tag] = value
		}
	}
	return wrapped
}

func sayAs(interpret, value string) string {
	return fmt.Sprintf(`<say-as interpret-as="%s">%s</say-as>`, interpret, value)
}
