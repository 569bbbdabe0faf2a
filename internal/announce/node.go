/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package announce

import (
	"fmt"
	"regexp"
	"strings"
)

// Delimiter marks pattern, tense pattern, and tag references inside fragments.
const Delimiter = '^'

// Reserved tag names. References to these resolve against song metadata
// rather than the pattern namespace, and script authors may not reuse them.
const (
	TagID          = "id"
	TagPath        = "path"
	TagParent      = "parent"
	TagTrackNumber = "track_number"
	TagDiscNumber  = "disc_number"
	TagTitle       = "title"
	TagArtist      = "artist"
	TagAlbumArtist = "album_artist"
	TagYear        = "year"
	TagAlbum       = "album"
	TagArtwork     = "artwork"
	TagDuration    = "duration"
	TagLyricist    = "lyricist"
	TagComposer    = "composer"
	TagGenre       = "genre"
	TagLabel       = "label"
)

// ReservedTags lists every reserved name in declaration order.
var ReservedTags = []string{
	TagID, TagPath, TagParent,
	TagTrackNumber, TagDiscNumber, TagTitle, TagArtist, TagAlbumArtist,
	TagYear, TagAlbum, TagArtwork, TagDuration, TagLyricist, TagComposer,
	TagGenre, TagLabel,
}

// AnnounceableTags lists the tags a TagPolicy governs. The id, path, and
// parent fields identify the file rather than describe the song, so they
// carry no policy row and are announced whenever present.
var AnnounceableTags = []string{
	TagTrackNumber, TagDiscNumber, TagTitle, TagArtist, TagAlbumArtist,
	TagYear, TagAlbum, TagArtwork, TagDuration, TagLyricist, TagComposer,
	TagGenre, TagLabel,
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidName reports whether name is a syntactically legal pattern name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Reserved reports whether name collides with a reserved tag.
func Reserved(name string) bool {
	for _, tag := range ReservedTags {
		if name == tag {
			return true
		}
	}
	return false
}

func announceable(name string) bool {
	for _, tag := range AnnounceableTags {
		if name == tag {
			return true
		}
	}
	return false
}

// Pattern is a named set of alternative fragment templates. Entry-point
// patterns ("whole" in script terms) may be used as a rendering root.
type Pattern struct {
	Name       string
	EntryPoint bool
	Fragments  []string
}

// TensePattern resolves to one of two literals depending on whether the
// announcement runs before or after playback.
type TensePattern struct {
	Name    string
	Past    string
	Present string
}

// Tense selects which half of a tense pattern applies to a render.
type Tense int

const (
	TensePresent Tense = iota
	TensePast
)

func (t Tense) String() string {
	if t == TensePast {
		return "past"
	}
	return "present"
}

// segment is one literal or reference slice of a parsed fragment.
type segment struct {
	text string
	ref  bool
}

// fragment is a compiled fragment template. tagRefs holds the reserved tag
// references the fragment needs, nodeRefs the pattern/tense references.
type fragment struct {
	raw      string
	segments []segment
	tagRefs  []string
	nodeRefs []string
}

type nodeKind int

const (
	kindPattern nodeKind = iota
	kindTense
)

// node is the closed sum of the two grammar node kinds.
type node struct {
	kind       nodeKind
	name       string
	entryPoint bool
	fragments  []fragment
	past       string
	present    string
}

// splitFragment parses a fragment template into literal and reference
// segments. It fails on an unpaired delimiter or an empty/ill-formed name
// between delimiters.
func splitFragment(raw string) ([]segment, error) {
	var segs []segment
	rest := raw
	for {
		open := strings.IndexByte(rest, Delimiter)
		if open < 0 {
			if rest != "" {
				segs = append(segs, segment{text: rest})
			}
			return segs, nil
		}
		close := strings.IndexByte(rest[open+1:], Delimiter)
		if close < 0 {
			return nil, fmt.Errorf("unpaired %q delimiter in %q", Delimiter, raw)
		}
		name := rest[open+1 : open+1+close]
		if !ValidName(name) {
			return nil, fmt.Errorf("malformed reference %q in %q", string(Delimiter)+name+string(Delimiter), raw)
		}
		if open > 0 {
			segs = append(segs, segment{text: rest[:open]})
		}
		segs = append(segs, segment{text: name, ref: true})
		rest = rest[open+close+2:]
	}
}

func compileFragment(raw string) (fragment, error) {
	segs, err := splitFragment(raw)
	if err != nil {
		return fragment{}, err
	}
	f := fragment{raw: raw, segments: segs}
	for _, s := range segs {
		if !s.ref {
			continue
		}
		if Reserved(s.text) {
			f.tagRefs = append(f.tagRefs, s.text)
		} else {
			f.nodeRefs = append(f.nodeRefs, s.text)
		}
	}
	return f, nil
}
