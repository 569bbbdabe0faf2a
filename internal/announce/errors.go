/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package announce

import (
	"fmt"
	"strings"
)

// ValidationKind identifies a script validation failure class.
type ValidationKind string

const (
	InvalidName           ValidationKind = "invalid_name"
	ReservedNameCollision ValidationKind = "reserved_name_collision"
	DuplicateName         ValidationKind = "duplicate_name"
	UnknownReference      ValidationKind = "unknown_reference"
	CyclicReference       ValidationKind = "cyclic_reference"
)

// ValidationError reports a script defect found during Build. It carries the
// offending name, the reference site, and the cycle path so an operator can
// fix the script without guessing.
type ValidationError struct {
	Kind      ValidationKind
	Name      string   // pattern or tense pattern at fault
	Reference string   // unresolved or malformed reference, if any
	Fragment  string   // fragment text the problem was found in
	Cycle     []string // discovered cycle path, CyclicReference only
	Detail    string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "script validation: %s", e.Kind)
	if e.Name != "" {
		fmt.Fprintf(&b, " in %q", e.Name)
	}
	if e.Reference != "" {
		fmt.Fprintf(&b, " reference %q", e.Reference)
	}
	if e.Fragment != "" {
		fmt.Fprintf(&b, " fragment %q", e.Fragment)
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " cycle %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// RenderKind identifies a per-announcement failure class. Render failures
// never touch registry state; callers recover by skipping or falling back to
// a simpler announcement.
type RenderKind string

const (
	UnknownEntryPoint   RenderKind = "unknown_entry_point"
	NoAvailableFragment RenderKind = "no_available_fragment"
)

// RenderError reports a failed render request.
type RenderError struct {
	Kind RenderKind
	Name string // entry point or pattern that could not produce output
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %s at %q", e.Kind, e.Name)
}
