/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package announce

import (
	"math/rand"
	"strings"
)

// render carries the per-call state of one expansion: the shared registry,
// the song binding, the tense, and the memoized tag decisions. It lives for
// exactly one Render call.
type render struct {
	reg   *Registry
	meta  Metadata
	tense Tense
	elig  *eligibility
	rng   *rand.Rand
}

// Render expands the named entry-point pattern into a final announcement
// string. The random source is an explicit argument so two calls with the
// same seed and inputs produce identical output, and concurrent renders
// never share randomness. Rendering performs no I/O and cannot recurse
// unboundedly: Build guarantees the reference graph is finite and acyclic.
func (r *Registry) Render(entryPoint string, meta Metadata, tense Tense, policy TagPolicy, rng *rand.Rand) (string, error) {
	n, ok := r.nodes[entryPoint]
	if !ok || n.kind != kindPattern || !n.entryPoint {
		return "", &RenderError{Kind: UnknownEntryPoint, Name: entryPoint}
	}
	rc := &render{
		reg:   r,
		meta:  meta,
		tense: tense,
		elig:  newEligibility(policy, meta, rng, r.optionalChance),
		rng:   rng,
	}
	return rc.expand(n)
}

func (rc *render) expand(n *node) (string, error) {
	if n.kind == kindTense {
		if rc.tense == TensePast {
			return n.past, nil
		}
		return n.present, nil
	}

	// A fragment is available only if every tag it mentions is eligible for
	// this render. Dropping an unavailable fragment silently would leave a
	// grammatically broken sentence, so zero survivors fail the whole render.
	available := make([]*fragment, 0, len(n.fragments))
	for i := range n.fragments {
		f := &n.fragments[i]
		if rc.fragmentAvailable(f) {
			available = append(available, f)
		}
	}
	if len(available) == 0 {
		return "", &RenderError{Kind: NoAvailableFragment, Name: n.name}
	}

	chosen := available[rc.rng.Intn(len(available))]

	var b strings.Builder
	for _, seg := range chosen.segments {
		if !seg.ref {
			b.WriteString(seg.text)
			continue
		}
		if Reserved(seg.text) {
			b.WriteString(rc.meta[seg.text])
			continue
		}
		expanded, err := rc.expand(rc.reg.nodes[seg.text])
		if err != nil {
			return "", err
		}
		b.WriteString(expanded)
	}
	return b.String(), nil
}

func (rc *render) fragmentAvailable(f *fragment) bool {
	for _, tag := range f.tagRefs {
		if !rc.elig.eligible(tag) {
			return false
		}
	}
	return true
}
