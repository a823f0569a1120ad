// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package markdown implements the section model: parsing a document into
// addressable sections, reassembling sections back into a document, and
// pulling final content out of fenced model replies.
// Implements: prd001-sectioning (R1-R4);
//
//	docs/ARCHITECTURE § Section Model.
package markdown

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/doc-engine/pkg/types"
)

// IntroID is the reserved id for the headingless span before the first
// heading. Regular sections always get "section_<n>" ids, so a heading
// titled "_intro_" can never collide with it.
const IntroID = "_intro_"

// sentinelHeading is appended before scanning so the last real section's
// body is bounded like every other one. It is discarded after parsing.
const sentinelHeading = "\n# __END__"

// headingRe matches a heading line: one or more '#' markers at line
// start, horizontal whitespace, then the title text.
var headingRe = regexp.MustCompile(`(?m)^(#+)[ \t]+(.*)$`)

// ParseSections splits a document into sections keyed by synthetic id.
// OriginalPosition records detection order; callers must sort by it and
// never infer position from id strings. Empty or whitespace-only input
// yields an empty map. Malformed Markdown never fails: text without any
// heading degrades to a single preamble section.
func ParseSections(doc string) map[string]types.Section {
	if strings.TrimSpace(doc) == "" {
		return map[string]types.Section{}
	}

	work := doc + sentinelHeading
	matches := headingRe.FindAllStringSubmatchIndex(work, -1)

	// The sentinel guarantees at least one match; everything before the
	// first heading is the preamble.
	sections := make(map[string]types.Section)
	pos := 0
	if pre := strings.TrimSpace(work[:matches[0][0]]); pre != "" {
		sections[IntroID] = types.Section{
			ID:               IntroID,
			Level:            0,
			Title:            "",
			Content:          pre,
			OriginalPosition: pos,
		}
		pos++
	}

	// The last match is the sentinel: it bounds the final section and is
	// never emitted itself.
	for i := 0; i < len(matches)-1; i++ {
		m, next := matches[i], matches[i+1]
		id := fmt.Sprintf("section_%d", i)
		sections[id] = types.Section{
			ID:               id,
			Level:            m[3] - m[2],
			Title:            strings.TrimSpace(work[m[4]:m[5]]),
			Content:          strings.TrimSpace(work[m[1]:next[0]]),
			OriginalPosition: pos,
		}
		pos++
	}
	return sections
}

// Ordered returns the sections sorted by OriginalPosition, with the
// preamble first regardless of its recorded position.
func Ordered(sections map[string]types.Section) []types.Section {
	out := make([]types.Section, 0, len(sections))
	for _, s := range sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPreamble() != out[j].IsPreamble() {
			return out[i].IsPreamble()
		}
		return out[i].OriginalPosition < out[j].OriginalPosition
	})
	return out
}

// Reassemble renders sections back into one document: heading line per
// non-preamble section, non-empty bodies, blocks joined by exactly one
// blank line, result trimmed. Reassemble(ParseSections(x)) is
// semantically equivalent to x for any document this model produced.
func Reassemble(sections map[string]types.Section) string {
	blocks := make([]string, 0, 2*len(sections))
	for _, s := range Ordered(sections) {
		if h := s.HeadingLine(); h != "" {
			blocks = append(blocks, h)
		}
		if body := strings.TrimSpace(s.Content); body != "" {
			blocks = append(blocks, body)
		}
	}
	return strings.TrimSpace(strings.Join(blocks, "\n\n"))
}

// Headings returns the ordered heading lines only. The pipeline captures
// this before enhancement as the structural contract the output must
// still satisfy.
func Headings(sections map[string]types.Section) []string {
	lines := make([]string, 0, len(sections))
	for _, s := range Ordered(sections) {
		if h := s.HeadingLine(); h != "" {
			lines = append(lines, h)
		}
	}
	return lines
}

// HeadingsPreserved reports whether every required heading line appears
// in doc, in the required order. Extra headings in doc are allowed.
func HeadingsPreserved(required []string, doc string) bool {
	if len(required) == 0 {
		return true
	}
	i := 0
	for _, h := range Headings(ParseSections(doc)) {
		if h == required[i] {
			i++
			if i == len(required) {
				return true
			}
		}
	}
	return false
}
