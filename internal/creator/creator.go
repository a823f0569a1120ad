// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package creator builds new Markdown documents from a topic: an outline
// planned by the chief editor (or loaded from a YAML file), one composed
// section per outline entry, and a final review pass. Failures degrade
// section by section; creation never returns an empty document.
// Implements: prd007-creation (R1-R4);
//
//	docs/ARCHITECTURE § Document Creation.
package creator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/doc-engine/internal/agent"
	"github.com/pdiddy/doc-engine/internal/guard"
	"github.com/pdiddy/doc-engine/internal/markdown"
	"github.com/pdiddy/doc-engine/internal/task"
	"github.com/pdiddy/doc-engine/pkg/types"
)

const (
	// summarySentences bounds the encyclopedia summary in research context.
	summarySentences = 5

	// relatedTitles bounds the related-article list in research context.
	relatedTitles = 5

	// maxOutlineSections caps a planned outline regardless of what the
	// planning reply claims.
	maxOutlineSections = 12
)

// Researcher provides encyclopedia context for new documents. Lookup
// failures are advisory: they cost context, never the document.
type Researcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Summary(ctx context.Context, title string, sentences int) (string, error)
}

// Options configures a Creator.
type Options struct {
	// Policy bounds placeholder detection and the review-acceptance
	// checks. Zero fields take their defaults.
	Policy types.PolicyConfig

	// Progress receives human-readable progress lines; nil discards them.
	Progress io.Writer
}

// Creator assembles new documents section by section.
type Creator struct {
	runner   agent.Runner
	roles    agent.Roles
	lookup   Researcher
	builder  *task.Builder
	policy   types.PolicyConfig
	progress io.Writer
}

// New returns a Creator executing through runner. lookup may be nil, in
// which case sections are composed without research context.
func New(runner agent.Runner, roles agent.Roles, lookup Researcher, opts Options) (*Creator, error) {
	if runner == nil {
		return nil, fmt.Errorf("creator: execution runner is required")
	}
	if roles.IsZero() {
		roles = agent.DefaultRoles()
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	policy := opts.Policy.WithDefaults()

	return &Creator{
		runner:   runner,
		roles:    roles,
		lookup:   lookup,
		builder:  task.NewBuilder(policy),
		policy:   policy,
		progress: progress,
	}, nil
}

// Create researches the topic, plans an outline, composes each planned
// section, and has the chief editor review the draft. Planning and
// composition failures degrade to the deterministic scaffold; only an
// empty topic or a cancelled context is an error.
func (c *Creator) Create(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("creator: topic is required")
	}

	research := c.research(ctx, topic)
	outline := c.planOutline(ctx, topic, research)
	return c.compose(ctx, topic, outline, research)
}

// CreateFromOutline composes a document over a caller-provided outline,
// skipping the planning stage.
func (c *Creator) CreateFromOutline(ctx context.Context, topic string, outline types.Outline) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("creator: topic is required")
	}
	if len(outline.Sections) == 0 {
		return "", fmt.Errorf("creator: outline has no sections")
	}

	research := c.research(ctx, topic)
	return c.compose(ctx, topic, outline, research)
}

// LoadOutline reads a document outline from a YAML file.
func LoadOutline(path string) (types.Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Outline{}, fmt.Errorf("reading outline: %w", err)
	}
	var outline types.Outline
	if err := yaml.Unmarshal(data, &outline); err != nil {
		return types.Outline{}, fmt.Errorf("parsing outline %s: %w", path, err)
	}
	if len(outline.Sections) == 0 {
		return types.Outline{}, fmt.Errorf("outline %s has no sections", path)
	}
	return outline, nil
}

// research assembles the advisory context block for planning and
// composition: the topic's encyclopedia summary plus related articles.
func (c *Creator) research(ctx context.Context, topic string) string {
	if c.lookup == nil {
		return ""
	}

	var b strings.Builder
	summary, err := c.lookup.Summary(ctx, topic, summarySentences)
	if err != nil {
		fmt.Fprintf(c.progress, "  warning: looking up %q: %v\n", topic, err)
	} else if summary != "" {
		b.WriteString(summary)
	}

	if titles, err := c.lookup.Search(ctx, topic, relatedTitles); err == nil && len(titles) > 0 {
		fmt.Fprintf(&b, "\n\nRelated topics: %s.", strings.Join(titles, ", "))
	}
	return strings.TrimSpace(b.String())
}

// planOutline asks the chief editor for a section plan, degrading to the
// default outline when the reply is unusable.
func (c *Creator) planOutline(ctx context.Context, topic, research string) types.Outline {
	prompt, err := c.builder.Outline(topic, research)
	var raw string
	if err == nil {
		raw, err = c.run(ctx, task.StageOutline, prompt, nil)
	}
	if err != nil {
		fmt.Fprintf(c.progress, "  warning: planning outline: %v\n", err)
		return defaultOutline(topic)
	}

	titles := parseOutlineTitles(raw)
	if len(titles) == 0 {
		fmt.Fprintf(c.progress, "  warning: outline reply had no usable sections\n")
		return defaultOutline(topic)
	}

	outline := types.Outline{Title: topic}
	for _, t := range titles {
		outline.Sections = append(outline.Sections, types.OutlineSection{Title: t})
	}
	return outline
}

// defaultOutline is the deterministic scaffold used when planning fails.
func defaultOutline(topic string) types.Outline {
	return types.Outline{
		Title: topic,
		Sections: []types.OutlineSection{
			{Title: "Introduction"},
			{Title: "Overview"},
			{Title: "Details"},
			{Title: "References"},
		},
	}
}

// parseOutlineTitles extracts section titles from a planning reply: a
// YAML list, possibly fenced. Anything else yields nil.
func parseOutlineTitles(raw string) []string {
	content := markdown.ExtractFinalContent(raw)
	var titles []string
	if err := yaml.Unmarshal([]byte(content), &titles); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, t := range titles {
		t = strings.TrimSpace(strings.TrimLeft(t, "# "))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == maxOutlineSections {
			break
		}
	}
	return out
}

// compose writes each outline section, assembles the draft, and applies
// the review pass.
func (c *Creator) compose(ctx context.Context, topic string, outline types.Outline, research string) (string, error) {
	title := strings.TrimSpace(outline.Title)
	if title == "" {
		title = topic
	}

	sections := map[string]types.Section{
		"section_0": {ID: "section_0", Level: 1, Title: title, OriginalPosition: 0},
	}
	composed := 0
	for i, s := range outline.Sections {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		body, err := c.composeSection(ctx, topic, s, research)
		if err != nil {
			fmt.Fprintf(c.progress, "  warning: composing %q: %v\n", s.Title, err)
			body = strings.TrimSpace(s.Description)
		} else {
			composed++
		}

		id := fmt.Sprintf("section_%d", i+1)
		sections[id] = types.Section{
			ID:               id,
			Level:            2,
			Title:            s.Title,
			Content:          body,
			OriginalPosition: i + 1,
		}
	}

	draft := markdown.Reassemble(sections)
	if composed == 0 {
		fmt.Fprintf(c.progress, "\nno section could be composed; returning the scaffold\n")
		return draft, nil
	}

	final := c.review(ctx, topic, draft, sections)
	fmt.Fprintf(c.progress, "\ncreated %q: %d/%d sections composed (%d chars)\n",
		title, composed, len(outline.Sections), len(final))
	return final, nil
}

// composeSection writes one section body, folding the outline description
// into the research context.
func (c *Creator) composeSection(ctx context.Context, topic string, s types.OutlineSection, research string) (string, error) {
	fmt.Fprintf(c.progress, "composing: %s\n", s.Title)

	sectionResearch := research
	if d := strings.TrimSpace(s.Description); d != "" {
		sectionResearch = strings.TrimSpace(d + "\n\n" + research)
	}

	prompt, err := c.builder.Compose(topic, s.Title, sectionResearch)
	if err != nil {
		return "", err
	}
	reply, err := c.run(ctx, task.StageCompose, prompt, nil)
	if err != nil {
		return "", err
	}

	body := markdown.ExtractFinalContent(reply)
	if guard.IsPlaceholder(body, c.policy.MinSectionChars) {
		return "", fmt.Errorf("reply too short for a section body")
	}
	return body, nil
}

// review runs the chief editor over the draft and keeps the result only
// when it preserves the draft's structure and substance; otherwise the
// draft stands.
func (c *Creator) review(ctx context.Context, topic, draft string, sections map[string]types.Section) string {
	prompt, err := c.builder.Review(topic, 0)
	if err == nil {
		var reply string
		reply, err = c.run(ctx, task.StageReview, prompt, func(task.Ref) (string, bool) {
			return draft, true
		})
		if err == nil {
			reviewed, repaired := guard.ValidateAndRepair(
				markdown.ExtractFinalContent(reply), sections, c.policy)
			if len(repaired) > 0 {
				fmt.Fprintf(c.progress, "restored %d section(s) the review hollowed out\n", len(repaired))
			}
			if c.reviewAcceptable(draft, reviewed, markdown.Headings(sections)) {
				return reviewed
			}
			err = fmt.Errorf("review dropped structure or substance")
		}
	}
	fmt.Fprintf(c.progress, "  warning: final review not applied: %v\n", err)
	return draft
}

// reviewAcceptable holds the review to the same floor the enhancement
// pipeline uses: the keep ratio and the draft's heading structure.
func (c *Creator) reviewAcceptable(draft, reviewed string, structure []string) bool {
	if float64(len(reviewed)) < c.policy.MinKeepRatio*float64(len(draft)) {
		return false
	}
	return markdown.HeadingsPreserved(structure, reviewed)
}

// run resolves a prompt and executes it under the stage's role. dep fills
// dependency slots; nil is valid for prompts without any.
func (c *Creator) run(ctx context.Context, kind task.Stage, prompt task.Prompt, dep func(task.Ref) (string, bool)) (string, error) {
	if dep == nil {
		dep = func(task.Ref) (string, bool) { return "", false }
	}
	instruction, err := prompt.Resolve(dep)
	if err != nil {
		return "", err
	}
	return c.runner.Run(ctx, c.roles.ForStage(kind), instruction)
}
