/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package announce

import "math/rand"

// Inclusion states how a tag participates in announcements.
type Inclusion string

const (
	IncludeRequired Inclusion = "required"
	IncludeOptional Inclusion = "optional"
	IncludeExclude  Inclusion = "exclude"
)

// TagPolicy maps each announceable tag to its inclusion rule. Tags without a
// row are treated as excluded.
type TagPolicy map[string]Inclusion

// DefaultTagPolicy mirrors the stock announcement behaviour: the headline
// tags are always spoken, flavour tags sometimes, bookkeeping tags never.
func DefaultTagPolicy() TagPolicy {
	return TagPolicy{
		TagTrackNumber: IncludeExclude,
		TagDiscNumber:  IncludeExclude,
		TagTitle:       IncludeRequired,
		TagArtist:      IncludeRequired,
		TagAlbumArtist: IncludeOptional,
		TagYear:        IncludeOptional,
		TagAlbum:       IncludeRequired,
		TagArtwork:     IncludeExclude,
		TagDuration:    IncludeExclude,
		TagLyricist:    IncludeRequired,
		TagComposer:    IncludeRequired,
		TagGenre:       IncludeOptional,
		TagLabel:       IncludeExclude,
	}
}

// Metadata is a read-only binding of one song's tag values keyed by reserved
// tag name. A missing key or empty value means the song has no such tag.
type Metadata map[string]string

// DefaultOptionalChance is the probability an optional, present tag is
// included in a render. Tunable via WithOptionalChance, not a contract.
const DefaultOptionalChance = 0.5

// eligibility memoizes per-render tag inclusion decisions so every
// occurrence of the same tag within one announcement agrees.
type eligibility struct {
	policy TagPolicy
	meta   Metadata
	rng    *rand.Rand
	chance float64
	cache  map[string]bool
}

func newEligibility(policy TagPolicy, meta Metadata, rng *rand.Rand, chance float64) *eligibility {
	return &eligibility{
		policy: policy,
		meta:   meta,
		rng:    rng,
		chance: chance,
		cache:  make(map[string]bool, len(AnnounceableTags)),
	}
}

// eligible decides whether tag may appear in this render. The first decision
// per tag is cached for the lifetime of the render.
func (e *eligibility) eligible(tag string) bool {
	if v, ok := e.cache[tag]; ok {
		return v
	}
	v := e.decide(tag)
	e.cache[tag] = v
	return v
}

func (e *eligibility) decide(tag string) bool {
	if e.meta[tag] == "" {
		return false
	}
	if !announceable(tag) {
		// id, path, parent: no policy row, present means usable.
		return true
	}
	switch e.policy[tag] {
	case IncludeRequired:
		return true
	case IncludeOptional:
		return e.rng.Float64() < e.chance
	default:
		return false
	}
}
