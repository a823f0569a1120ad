// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package task models pipeline stage tasks: their kinds, their
// non-negotiable constraint sets, and their instruction payloads.
// Dependencies between tasks are explicit references resolved by the
// executor, never placeholder strings spliced into prompt text.
// Implements: prd002-tasking (R1-R4);
//
//	docs/ARCHITECTURE § Task Model.
package task

import (
	"fmt"
	"strings"

	"github.com/pdiddy/doc-engine/pkg/types"
)

// Stage identifies one step of the enhancement or creation pipeline.
type Stage string

const (
	// StageEnrich appends researched context to a section body.
	StageEnrich Stage = "enrich"

	// StageVerify fact-checks an enriched body, correcting only false claims.
	StageVerify Stage = "verify"

	// StageLink turns significant terms into encyclopedia links.
	StageLink Stage = "link"

	// StageEdit merges all linked sections into the final document.
	StageEdit Stage = "edit"

	// StageOutline plans the section structure of a new document.
	StageOutline Stage = "outline"

	// StageCompose writes a new section from research context.
	StageCompose Stage = "compose"

	// StageReview gives a freshly composed document a final editorial pass.
	StageReview Stage = "review"
)

// Ref is an arena index identifying a task within one pipeline run.
type Ref int

// NoRef marks a prompt part as literal text rather than a dependency slot.
const NoRef Ref = -1

// Part is one segment of an instruction payload: either literal text or
// a slot filled with a dependency's produced output.
type Part struct {
	// Text is the literal content. Unused when Dep is set.
	Text string

	// Dep references the task whose output fills this slot; NoRef for
	// literal parts.
	Dep Ref
}

// Literal wraps text as a literal prompt part.
func Literal(text string) Part {
	return Part{Text: text, Dep: NoRef}
}

// DepOutput creates a slot for a dependency's output.
func DepOutput(ref Ref) Part {
	return Part{Dep: ref}
}

// Prompt is the ordered part sequence forming one instruction payload.
type Prompt []Part

// Refs returns the dependency references appearing in the prompt, in order.
func (p Prompt) Refs() []Ref {
	var refs []Ref
	for _, part := range p {
		if part.Dep != NoRef {
			refs = append(refs, part.Dep)
		}
	}
	return refs
}

// Resolve renders the prompt to final instruction text, filling each
// dependency slot from the output function. It fails when a referenced
// dependency has produced no output yet; the executor must not call it
// before all dependencies completed.
func (p Prompt) Resolve(output func(Ref) (string, bool)) (string, error) {
	var b strings.Builder
	for _, part := range p {
		if part.Dep == NoRef {
			b.WriteString(part.Text)
			continue
		}
		text, ok := output(part.Dep)
		if !ok {
			return "", fmt.Errorf("dependency %d has no output", part.Dep)
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// Task is one stage instance. Tasks live only for the duration of one
// run; the run exclusively owns them and their outputs.
type Task struct {
	// Ref is this task's own arena index.
	Ref Ref

	// Kind is the pipeline stage.
	Kind Stage

	// SectionID targets a per-section stage; empty for document-level
	// stages (edit, review).
	SectionID string

	// SectionTitle is carried for lookup context and progress output.
	SectionTitle string

	// Role names the agent role that executes this task.
	Role string

	// Prompt is the structured instruction payload.
	Prompt Prompt

	// DependsOn lists tasks whose outputs must exist before this task
	// runs. Every prompt slot's ref appears here.
	DependsOn []Ref

	// Tools names the lookup operations the executor may consult while
	// materializing context for this task.
	Tools []string
}

// Constraint is one named, non-negotiable rule passed to the execution
// capability.
type Constraint struct {
	// Name is a stable machine-readable rule identifier.
	Name string

	// Rule is the rendered natural-language rule text.
	Rule string
}

// ConstraintsFor returns the rule set for a stage with policy bounds
// substituted. The sets are fixed per stage; only numeric bounds vary.
func ConstraintsFor(kind Stage, policy types.PolicyConfig) []Constraint {
	policy = policy.WithDefaults()
	switch kind {
	case StageEnrich:
		return []Constraint{
			{"reproduce-original", "Reproduce 100% of the original text exactly as given; never paraphrase, shorten, or reorder it."},
			{"append-only", "Only add: new sentences may appear between or after existing ones, existing sentences stay untouched."},
			{"enrichment-only", "Every added sentence must contribute verifiable factual context about the section topic."},
			{"body-only", "Return the section body text only, without any heading line."},
		}
	case StageVerify:
		return []Constraint{
			{"preserve-input", "Preserve the entire input text."},
			{"correct-false-only", "Rewrite a claim only when it is factually false; correct claims stay word-for-word."},
			{"cite-briefly", "When correcting a claim, append a brief parenthetical naming the source."},
			{"body-only", "Return the section body text only, without any heading line."},
		}
	case StageLink:
		return []Constraint{
			{"preserve-text", "Keep the input text unchanged apart from turning selected terms into Markdown links."},
			{"link-count", fmt.Sprintf("Create between %d and %d links in total.", policy.MinLinks, policy.MaxLinks)},
			{"skip-headings", "Never link heading text."},
			{"skip-generic", "Skip generic everyday terms; link only specific, significant topics."},
			{"first-occurrence", "Link only the first significant occurrence of each term."},
			{"body-only", "Return the section body text only, without any heading line."},
		}
	case StageEdit:
		return []Constraint{
			{"preserve-structure", "Preserve every original heading exactly: same level, same text, same order."},
			{"never-drop", "Never drop content; every passage of every input must appear in the result."},
			{"no-shrink", "The result must be at least as long as the combined inputs."},
			{"full-document", "Return the complete Markdown document."},
		}
	case StageOutline:
		return []Constraint{
			{"yaml-list", "Return a YAML list of section titles and nothing else."},
			{"top-level-only", "Plan top-level sections only: no nesting, no numbering."},
			{"section-count", "Plan between 3 and 8 sections."},
		}
	case StageCompose:
		return []Constraint{
			{"grounded", "Ground every claim in the provided research context."},
			{"body-only", "Return the section body text only, without any heading line."},
		}
	case StageReview:
		return []Constraint{
			{"preserve-structure", "Preserve every heading exactly: same level, same text, same order."},
			{"never-drop", "Never drop content from the draft."},
			{"full-document", "Return the complete Markdown document."},
		}
	}
	return nil
}
