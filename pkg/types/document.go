// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// Section is a contiguous span of a Markdown document: zero or one
// heading line plus the body text running to the next heading.
// Per prd001-sectioning R1.1-R1.5.
type Section struct {
	// ID is a stable synthetic identifier, distinct from the title
	// (titles are not guaranteed unique). Callers must never infer
	// position from the ID string.
	ID string `json:"id" yaml:"id"`

	// Level is the heading depth: 0 for the preamble span before the
	// first heading, otherwise the number of '#' markers.
	Level int `json:"level" yaml:"level"`

	// Title is the heading text, empty for the preamble.
	Title string `json:"title" yaml:"title"`

	// Content is the body text strictly between this heading and the next.
	Content string `json:"content" yaml:"content"`

	// OriginalPosition is the rank establishing total order among the
	// sections of one document snapshot.
	OriginalPosition int `json:"original_position" yaml:"original_position"`
}

// IsPreamble reports whether the section is the headingless span before
// the first heading.
func (s Section) IsPreamble() bool {
	return s.Level == 0
}

// HeadingLine renders the section's heading line, or "" for the preamble.
func (s Section) HeadingLine() string {
	if s.Level <= 0 {
		return ""
	}
	return strings.Repeat("#", s.Level) + " " + s.Title
}
