// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Outline describes the planned structure of a new document.
type Outline struct {
	// Title is the document's top-level heading. The topic stands in
	// when empty.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Sections lists the planned sections in order.
	Sections []OutlineSection `json:"sections" yaml:"sections"`
}

// OutlineSection is one planned section of a new document.
type OutlineSection struct {
	// Title is the section heading text.
	Title string `json:"title" yaml:"title"`

	// Description sketches what the section should cover. It is folded
	// into the section's research context and stands in for the body
	// when composition fails.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}
