// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package task

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/pdiddy/doc-engine/pkg/types"
)

// Builder renders instruction payloads for stage tasks. It reads no
// external state: identical section content, stage kind, and policy
// produce identical payloads, the section title being the only
// substitution.
type Builder struct {
	policy types.PolicyConfig
}

// NewBuilder returns a Builder applying the given policy bounds.
func NewBuilder(policy types.PolicyConfig) *Builder {
	return &Builder{policy: policy.WithDefaults()}
}

// promptData feeds the stage templates.
type promptData struct {
	Title       string
	Topic       string
	Content     string
	Research    string
	Constraints []Constraint
	Structure   []string
}

var enrichPromptTmpl = template.Must(template.New("enrich").Parse(`You are enriching one section of a Markdown document.
Section title: {{.Title}}

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
Original section text:
---
{{.Content}}
---

Expected output: the complete enriched body text for this section, plain Markdown, no heading line.`))

var verifyPromptHeadTmpl = template.Must(template.New("verify").Parse(`You are fact-checking one section of a Markdown document.
Section title: {{.Title}}

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
Input text to verify:
---
`))

var linkPromptHeadTmpl = template.Must(template.New("link").Parse(`You are adding encyclopedia links to one section of a Markdown document.
Section title: {{.Title}}

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
Input text to link:
---
`))

var editPromptHeadTmpl = template.Must(template.New("edit").Parse(`You are performing the final editorial pass over an enhanced document.

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
The output must contain these heading lines, unchanged and in this order:
{{range .Structure}}{{.}}
{{end}}
The enhanced section bodies follow, in document order.`))

var outlinePromptTmpl = template.Must(template.New("outline").Parse(`You are planning the section structure of a new Markdown document.
Document topic: {{.Topic}}

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
Research context:
---
{{.Research}}
---

Expected output: a YAML list with one quoted section title per line, for example:
- "Introduction"
- "History"`))

var composePromptTmpl = template.Must(template.New("compose").Parse(`You are writing one section of a new Markdown document.
Document topic: {{.Topic}}
Section title: {{.Title}}

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
Research context:
---
{{.Research}}
---

Expected output: the body text for this section, plain Markdown, no heading line.`))

var reviewPromptHeadTmpl = template.Must(template.New("review").Parse(`You are the chief editor giving a new document its final pass.
Document topic: {{.Topic}}

Non-negotiable rules:
{{range .Constraints}}- {{.Rule}}
{{end}}
Draft document:
---
`))

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// Enrich builds the payload for enriching one section. The section body
// is restated literally inside the instruction, never paraphrased.
func (b *Builder) Enrich(section types.Section) (Prompt, error) {
	head, err := render(enrichPromptTmpl, promptData{
		Title:       section.Title,
		Content:     section.Content,
		Constraints: ConstraintsFor(StageEnrich, b.policy),
	})
	if err != nil {
		return nil, err
	}
	return Prompt{Literal(head)}, nil
}

// Verify builds the payload fact-checking a dependency's output.
func (b *Builder) Verify(section types.Section, dep Ref) (Prompt, error) {
	head, err := render(verifyPromptHeadTmpl, promptData{
		Title:       section.Title,
		Constraints: ConstraintsFor(StageVerify, b.policy),
	})
	if err != nil {
		return nil, err
	}
	return Prompt{
		Literal(head),
		DepOutput(dep),
		Literal("\n---\n\nExpected output: the verified body text for this section, plain Markdown, no heading line."),
	}, nil
}

// Link builds the payload turning terms of a dependency's output into links.
func (b *Builder) Link(section types.Section, dep Ref) (Prompt, error) {
	head, err := render(linkPromptHeadTmpl, promptData{
		Title:       section.Title,
		Constraints: ConstraintsFor(StageLink, b.policy),
	})
	if err != nil {
		return nil, err
	}
	return Prompt{
		Literal(head),
		DepOutput(dep),
		Literal("\n---\n\nExpected output: the linked body text for this section, plain Markdown, no heading line."),
	}, nil
}

// Edit builds the payload merging all linked section outputs into the
// final document, bound to the captured heading structure.
func (b *Builder) Edit(structure []string, deps []Ref) (Prompt, error) {
	head, err := render(editPromptHeadTmpl, promptData{
		Constraints: ConstraintsFor(StageEdit, b.policy),
		Structure:   structure,
	})
	if err != nil {
		return nil, err
	}
	prompt := Prompt{Literal(head)}
	for _, dep := range deps {
		prompt = append(prompt, Literal("\n\n--- section ---\n"), DepOutput(dep))
	}
	prompt = append(prompt, Literal("\n\nExpected output: the complete final Markdown document."))
	return prompt, nil
}

// Outline builds the payload planning the section list of a new document.
func (b *Builder) Outline(topic, research string) (Prompt, error) {
	body, err := render(outlinePromptTmpl, promptData{
		Topic:       topic,
		Research:    research,
		Constraints: ConstraintsFor(StageOutline, b.policy),
	})
	if err != nil {
		return nil, err
	}
	return Prompt{Literal(body)}, nil
}

// Compose builds the payload writing one section of a new document.
func (b *Builder) Compose(topic, title, research string) (Prompt, error) {
	body, err := render(composePromptTmpl, promptData{
		Topic:       topic,
		Title:       title,
		Research:    research,
		Constraints: ConstraintsFor(StageCompose, b.policy),
	})
	if err != nil {
		return nil, err
	}
	return Prompt{Literal(body)}, nil
}

// Review builds the payload for the chief editor's pass over a draft.
func (b *Builder) Review(topic string, dep Ref) (Prompt, error) {
	head, err := render(reviewPromptHeadTmpl, promptData{
		Topic:       topic,
		Constraints: ConstraintsFor(StageReview, b.policy),
	})
	if err != nil {
		return nil, err
	}
	return Prompt{
		Literal(head),
		DepOutput(dep),
		Literal("\n---\n\nExpected output: the complete final Markdown document."),
	}, nil
}
