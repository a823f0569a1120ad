// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/doc-engine/internal/task"
)

// Lookup operation names a task may declare.
const (
	toolSearch  = "search"
	toolSummary = "summary"
	toolURL     = "url"
)

// relatedTitles bounds how many related articles feed a stage's
// reference material, and recallLimit how many prior-run notes.
const (
	relatedTitles = 3
	recallLimit   = 3
)

// Lookup is the slice of the encyclopedia client the pipeline consults
// while preparing stage instructions. Every result is advisory reference
// material; a lookup failure never fails a stage.
type Lookup interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Summary(ctx context.Context, title string, sentences int) (string, error)
	CanonicalURL(ctx context.Context, title string) (string, error)
}

// toolContext materializes the reference material a task's declared
// tools would have answered. The execution capability takes plain
// instruction text, so tool results are resolved here, before the call,
// and appended to the instruction.
func (e *Enhancer) toolContext(ctx context.Context, t *task.Task) string {
	topic := t.SectionTitle
	if len(t.Tools) == 0 || topic == "" {
		return ""
	}

	var b strings.Builder
	for _, tool := range t.Tools {
		if e.lookup == nil {
			break
		}
		switch tool {
		case toolSummary:
			if summary, err := e.lookup.Summary(ctx, topic, 0); err == nil && summary != "" {
				fmt.Fprintf(&b, "\nEncyclopedia summary for %q:\n%s\n", topic, summary)
			}
		case toolSearch:
			if titles, err := e.lookup.Search(ctx, topic, relatedTitles); err == nil && len(titles) > 0 {
				fmt.Fprintf(&b, "\nRelated encyclopedia articles: %s\n", strings.Join(titles, "; "))
			}
		case toolURL:
			b.WriteString(e.linkTargets(ctx, topic))
		}
	}
	if t.Kind == task.StageEnrich {
		b.WriteString(e.recallNotes(ctx, topic))
	}

	if b.Len() == 0 {
		return ""
	}
	return "\n\nReference material (advisory, not part of the text to process):" + b.String()
}

// linkTargets lists known article URLs for a link stage: the section's
// own topic plus a few related titles, each resolved to its canonical
// URL. All of these hit the lookup client's cache, so repeated topics
// cost no extra traffic.
func (e *Enhancer) linkTargets(ctx context.Context, topic string) string {
	titles := []string{topic}
	if related, err := e.lookup.Search(ctx, topic, relatedTitles); err == nil {
		titles = append(titles, related...)
	}

	var b strings.Builder
	seen := make(map[string]bool)
	for _, title := range titles {
		key := strings.ToLower(strings.TrimSpace(title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		url, err := e.lookup.CanonicalURL(ctx, title)
		if err != nil || url == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", title, url)
	}
	if b.Len() == 0 {
		return ""
	}
	return "\nKnown article URLs for Markdown links:\n" + b.String()
}

// recallNotes pulls prior-run notes about a topic from the optional
// memory store. An absent store or a failed recall contributes nothing.
func (e *Enhancer) recallNotes(ctx context.Context, topic string) string {
	results, err := e.memory.SemanticRecall(ctx, topic, recallLimit)
	if err != nil || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nNotes from previous runs:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Section, snippet(r.Content, 200))
	}
	return b.String()
}

// snippet truncates recalled content for prompt injection.
func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
