// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package guard detects degenerate stage output and restores known-good
// section content. The guard only ever restores; it never removes text
// the model produced.
// Implements: prd004-recovery (R2.1-R2.4);
//
//	docs/ARCHITECTURE § Output Guard.
package guard

import (
	"sort"
	"strings"

	"github.com/pdiddy/doc-engine/internal/markdown"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// commentMarker opens an HTML comment; models emit these as empty-section
// placeholders.
const commentMarker = "<!--"

// ValidateAndRepair re-parses an improved document, replaces placeholder
// section bodies with the corresponding original content (matched by
// section id, only when the original body is non-empty), and returns the
// repaired document plus the ids restored. When nothing needs repair the
// input is returned unchanged.
func ValidateAndRepair(improved string, original map[string]types.Section, policy types.PolicyConfig) (string, []string) {
	policy = policy.WithDefaults()

	sections := markdown.ParseSections(improved)
	if len(sections) == 0 {
		return improved, nil
	}

	var repaired []string
	for id, s := range sections {
		if !IsPlaceholder(s.Content, policy.MinSectionChars) {
			continue
		}
		orig, ok := original[id]
		if !ok || strings.TrimSpace(orig.Content) == "" {
			continue
		}
		s.Content = orig.Content
		sections[id] = s
		repaired = append(repaired, id)
	}
	if len(repaired) == 0 {
		return improved, nil
	}

	sort.Strings(repaired)
	return markdown.Reassemble(sections), repaired
}

// IsPlaceholder reports whether a section body is degenerate: it begins
// with a comment marker or its trimmed length falls under minChars.
func IsPlaceholder(content string, minChars int) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, commentMarker) || len(trimmed) < minChars
}
