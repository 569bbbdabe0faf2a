/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package script owns the announcement script document: parsing the YAML
// authors write, validating the parts the expansion engine does not see
// (conjunctions, tag policy rows), and compiling the result into an
// announce.Registry.
package script

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/skald/internal/announce"
)

//go:embed default_script.yaml
var defaultScript []byte

// Document is the deserialized announcement script.
type Document struct {
	Patterns      []PatternRecord      `yaml:"patterns"`
	TensePatterns []TensePatternRecord `yaml:"tense_patterns"`
	Conjunctions  []string             `yaml:"conjunctions"`
	TagsToAnnounce map[string]string   `yaml:"tags_to_announce"`
}

// PatternRecord is one named pattern as authored. Whole marks patterns
// usable as a rendering root.
type PatternRecord struct {
	Name      string   `yaml:"name"`
	Whole     bool     `yaml:"whole"`
	Fragments []string `yaml:"fragments"`
}

// TensePatternRecord carries the two conjugations of a phrase.
type TensePatternRecord struct {
	Name    string `yaml:"name"`
	Past    string `yaml:"past"`
	Present string `yaml:"present"`
}

// Parse deserializes a script document without compiling it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return &doc, nil
}

// Load reads and parses a script file from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded stock script parsed. The embedded document is
// covered by tests, so a parse failure here is a build defect.
func Default() *Document {
	doc, err := Parse(defaultScript)
	if err != nil {
		panic(fmt.Sprintf("embedded default script invalid: %v", err))
	}
	return doc
}

// TagPolicy converts the tags_to_announce rows into an engine policy table.
// Unknown tag names and unknown inclusion values are rejected rather than
// silently dropped.
func (d *Document) TagPolicy() (announce.TagPolicy, error) {
	if len(d.TagsToAnnounce) == 0 {
		return announce.DefaultTagPolicy(), nil
	}
	policy := announce.TagPolicy{}
	for tag, value := range d.TagsToAnnounce {
		if !isAnnounceable(tag) {
			return nil, fmt.Errorf("tags_to_announce: %q is not an announceable tag", tag)
		}
		switch announce.Inclusion(strings.ToLower(value)) {
		case announce.IncludeRequired, announce.IncludeOptional, announce.IncludeExclude:
			policy[tag] = announce.Inclusion(strings.ToLower(value))
		default:
			return nil, fmt.Errorf("tags_to_announce: %q has unknown inclusion %q", tag, value)
		}
	}
	return policy, nil
}

func isAnnounceable(tag string) bool {
	for _, t := range announce.AnnounceableTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Compile validates the document and builds the immutable registry plus the
// active tag policy and conjunction list.
func (d *Document) Compile(opts ...announce.Option) (*announce.Registry, announce.TagPolicy, []string, error) {
	for _, c := range d.Conjunctions {
		if strings.ContainsRune(c, announce.Delimiter) {
			return nil, nil, nil, fmt.Errorf("conjunction %q: delimiter %q not allowed", c, announce.Delimiter)
		}
	}

	patterns := make([]announce.Pattern, 0, len(d.Patterns))
	for _, p := range d.Patterns {
		patterns = append(patterns, announce.Pattern{
			Name:       p.Name,
			EntryPoint: p.Whole,
			Fragments:  p.Fragments,
		})
	}
	tense := make([]announce.TensePattern, 0, len(d.TensePatterns))
	for _, tp := range d.TensePatterns {
		tense = append(tense, announce.TensePattern{Name: tp.Name, Past: tp.Past, Present: tp.Present})
	}

	reg, err := announce.Build(patterns, tense, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	policy, err := d.TagPolicy()
	if err != nil {
		return nil, nil, nil, err
	}

	conjunctions := d.Conjunctions
	if len(conjunctions) == 0 {
		conjunctions = []string{""}
	}
	return reg, policy, conjunctions, nil
}
