/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package announce

import "sort"

// Registry holds a validated, immutable pattern grammar. It is built once
// per script load and shared read-only across concurrent renders.
type Registry struct {
	nodes          map[string]*node
	entryPoints    []string
	optionalChance float64
}

// Option adjusts registry tunables.
type Option func(*Registry)

// WithOptionalChance overrides the inclusion probability for optional tags.
func WithOptionalChance(p float64) Option {
	return func(r *Registry) { r.optionalChance = p }
}

// Build validates the script records and compiles them into a Registry.
// Checks run in a fixed order so a broken script always reports the same
// error kind: name syntax, reserved collisions, duplicates, reference
// resolution, then cycle detection.
func Build(patterns []Pattern, tensePatterns []TensePattern, opts ...Option) (*Registry, error) {
	reg := &Registry{
		nodes:          make(map[string]*node, len(patterns)+len(tensePatterns)),
		optionalChance: DefaultOptionalChance,
	}
	for _, o := range opts {
		o(reg)
	}

	for _, p := range patterns {
		if !ValidName(p.Name) {
			return nil, &ValidationError{Kind: InvalidName, Name: p.Name}
		}
	}
	for _, tp := range tensePatterns {
		if !ValidName(tp.Name) {
			return nil, &ValidationError{Kind: InvalidName, Name: tp.Name}
		}
	}

	for _, p := range patterns {
		if Reserved(p.Name) {
			return nil, &ValidationError{Kind: ReservedNameCollision, Name: p.Name}
		}
	}
	for _, tp := range tensePatterns {
		if Reserved(tp.Name) {
			return nil, &ValidationError{Kind: ReservedNameCollision, Name: tp.Name}
		}
	}

	// Patterns and tense patterns share one namespace.
	for _, p := range patterns {
		if _, dup := reg.nodes[p.Name]; dup {
			return nil, &ValidationError{Kind: DuplicateName, Name: p.Name}
		}
		// A pattern with no fragments could never render; catch it at load
		// time instead of failing every announcement.
		if len(p.Fragments) == 0 {
			return nil, &ValidationError{Kind: InvalidName, Name: p.Name, Detail: "pattern has no fragments"}
		}
		n := &node{kind: kindPattern, name: p.Name, entryPoint: p.EntryPoint}
		for _, raw := range p.Fragments {
			f, err := compileFragment(raw)
			if err != nil {
				return nil, &ValidationError{Kind: InvalidName, Name: p.Name, Fragment: raw, Detail: err.Error()}
			}
			n.fragments = append(n.fragments, f)
		}
		reg.nodes[p.Name] = n
	}
	for _, tp := range tensePatterns {
		if _, dup := reg.nodes[tp.Name]; dup {
			return nil, &ValidationError{Kind: DuplicateName, Name: tp.Name}
		}
		reg.nodes[tp.Name] = &node{kind: kindTense, name: tp.Name, past: tp.Past, present: tp.Present}
	}

	if err := reg.resolveReferences(); err != nil {
		return nil, err
	}
	if err := reg.detectCycles(); err != nil {
		return nil, err
	}

	for name, n := range reg.nodes {
		if n.kind == kindPattern && n.entryPoint {
			reg.entryPoints = append(reg.entryPoints, name)
		}
	}
	sort.Strings(reg.entryPoints)

	return reg, nil
}

// resolveReferences checks that every fragment reference names a pattern,
// tense pattern, or reserved tag.
func (r *Registry) resolveReferences() error {
	for _, name := range r.sortedNames() {
		n := r.nodes[name]
		for _, f := range n.fragments {
			for _, ref := range f.nodeRefs {
				if _, ok := r.nodes[ref]; !ok {
					return &ValidationError{Kind: UnknownReference, Name: name, Reference: ref, Fragment: f.raw}
				}
			}
		}
	}
	return nil
}

// detectCycles runs a depth-first traversal over the reference graph with an
// on-stack set. The visiting path is carried explicitly so the traversal is
// reentrant and the discovered cycle can be reported whole.
func (r *Registry) detectCycles() error {
	done := make(map[string]bool, len(r.nodes))
	onStack := make(map[string]bool, len(r.nodes))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		if done[name] {
			return nil
		}
		if onStack[name] {
			cycle := append(cycleSuffix(path, name), name)
			return &ValidationError{Kind: CyclicReference, Name: name, Cycle: cycle}
		}
		onStack[name] = true
		path = append(path, name)
		n := r.nodes[name]
		for _, f := range n.fragments {
			for _, ref := range f.nodeRefs {
				if err := visit(ref); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		onStack[name] = false
		done[name] = true
		return nil
	}

	for _, name := range r.sortedNames() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// cycleSuffix trims the visiting path down to the loop that closes at name.
func cycleSuffix(path []string, name string) []string {
	for i, p := range path {
		if p == name {
			return append([]string(nil), path[i:]...)
		}
	}
	return append([]string(nil), path...)
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntryPoints returns the names of patterns usable as a rendering root.
func (r *Registry) EntryPoints() []string {
	out := make([]string, len(r.entryPoints))
	copy(out, r.entryPoints)
	return out
}

// Lookup reports whether name is defined and, if so, whether it is an
// entry-point pattern.
func (r *Registry) Lookup(name string) (exists, entryPoint bool) {
	n, ok := r.nodes[name]
	if !ok {
		return false, false
	}
	return true, n.kind == kindPattern && n.entryPoint
}
