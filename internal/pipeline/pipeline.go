// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates document enhancement as a dependency-
// ordered task graph: an Enrich→[Verify]→Link chain per section
// converging on a single Edit merge, with a recovery ladder guaranteeing
// the output is never worse than the input.
// Implements: prd003-orchestration (R1-R5), prd004-recovery (R1, R3-R4);
//
//	docs/ARCHITECTURE § Orchestration.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/doc-engine/internal/agent"
	"github.com/pdiddy/doc-engine/internal/guard"
	"github.com/pdiddy/doc-engine/internal/markdown"
	"github.com/pdiddy/doc-engine/internal/memory"
	"github.com/pdiddy/doc-engine/internal/task"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// defaultMaxRetries is the per-stage retry budget when Options leaves it
// unset.
const defaultMaxRetries = 3

// Options configure run shape, content-safety thresholds, and reporting.
type Options struct {
	// Enhance shapes the run: optional verify stage, section cap, chain
	// concurrency.
	Enhance types.EnhanceConfig

	// Policy holds the guard and recovery thresholds.
	Policy types.PolicyConfig

	// MaxRetries is the per-stage retry budget (default 3).
	MaxRetries int

	// Progress receives human-readable run status; nil discards it.
	Progress io.Writer
}

// Enhancer runs the enhancement pipeline over Markdown documents.
// Construct with New.
type Enhancer struct {
	runner     agent.Runner
	roles      agent.Roles
	lookup     Lookup
	memory     *memory.Store
	enhance    types.EnhanceConfig
	policy     types.PolicyConfig
	maxRetries int

	mu       sync.Mutex
	progress io.Writer
}

// New builds an Enhancer over its capabilities. The runner is the hard
// requirement: without an execution capability no valid run can start,
// so construction fails instead. lookup and store may be nil; stages
// then carry no reference material and nothing is recorded across runs.
func New(runner agent.Runner, roles agent.Roles, lookup Lookup, store *memory.Store, opts Options) (*Enhancer, error) {
	if runner == nil {
		return nil, fmt.Errorf("pipeline: execution runner is required")
	}
	if roles.IsZero() {
		roles = agent.DefaultRoles()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Enhancer{
		runner:     runner,
		roles:      roles,
		lookup:     lookup,
		memory:     store,
		enhance:    opts.Enhance,
		policy:     opts.Policy.WithDefaults(),
		maxRetries: maxRetries,
		progress:   progress,
	}, nil
}

// Enhance runs the full pipeline over a document and returns the
// enhanced text with a run report. It never fails: stage errors degrade
// through the recovery ladder, and the worst outcome is the original
// document returned unchanged.
func (e *Enhancer) Enhance(ctx context.Context, doc string) (string, types.RunReport) {
	report := types.RunReport{
		RunID:      uuid.NewString(),
		State:      types.RunRunning,
		InputChars: len(doc),
		Started:    time.Now(),
	}

	sections := markdown.ParseSections(doc)
	report.Sections = len(sections)

	p, err := e.buildPlan(sections)
	switch {
	case err != nil:
		report.State = types.RunRejected
		report.Advisory = fmt.Sprintf("planning failed: %v", err)
		return e.finish(ctx, doc, report)
	case len(p.chains) == 0:
		report.State = types.RunCompleted
		report.Advisory = "document has no section bodies to enhance"
		return e.finish(ctx, doc, report)
	}

	e.progressf("run %s: %d sections, %d chains, %d tasks\n",
		shortID(report.RunID), report.Sections, len(p.chains), len(p.tasks))

	res := e.runTasks(ctx, p)
	report.Failed = res.failures()
	for _, c := range p.chains {
		if res.completed[c.linkRef] {
			report.Enriched++
		}
	}

	final, state := e.assemble(doc, p, res, &report)
	report.State = state

	e.saveNotes(ctx, p, res, report.RunID)
	return e.finish(ctx, final, report)
}

// assemble turns the executed graph into the final document, descending
// the recovery ladder as needed: merged output, guard repair, manual
// reassembly from stage outputs, untouched original.
func (e *Enhancer) assemble(doc string, p *plan, res *execResult, report *types.RunReport) (string, types.RunState) {
	if out, ok := res.output(p.editRef); ok {
		merged, repaired := guard.ValidateAndRepair(markdown.ExtractFinalContent(out), p.snapshot, e.policy)
		report.Repaired = repaired
		if e.mergeUsable(doc, p.structure, merged) {
			if len(repaired) == 0 {
				return merged, types.RunCompleted
			}
			e.progressf("repaired: %d section(s) restored from the original\n", len(repaired))
			return merged, types.RunPartiallyRecovered
		}
		e.progressf("merge below thresholds, rebuilding from stage outputs\n")
	} else {
		e.progressf("merge unavailable, rebuilding from stage outputs\n")
	}

	rebuilt, used := e.manualReassembly(p, res)
	if used == 0 {
		report.Advisory = "no stage produced usable output; returning the original document"
		return doc, types.RunRejected
	}
	if !e.recoveryAcceptable(doc, p.structure, rebuilt) {
		report.Advisory = fmt.Sprintf(
			"rebuilt document kept %d section(s) but fell below the keep ratio; returning the original", used)
		return doc, types.RunRejected
	}
	report.Advisory = fmt.Sprintf("document rebuilt from %d completed section(s)", used)
	return rebuilt, types.RunRecovered
}

// manualReassembly rebuilds the document from the link outputs that did
// complete, leaving every other section at its original snapshot. It
// returns the rebuilt document and how many sections took a stage
// output.
func (e *Enhancer) manualReassembly(p *plan, res *execResult) (string, int) {
	sections := make(map[string]types.Section, len(p.snapshot))
	for id, s := range p.snapshot {
		sections[id] = s
	}

	used := 0
	for _, c := range p.chains {
		content := e.usableOutput(res, c.linkRef)
		if content == "" {
			continue
		}
		s := sections[c.sectionID]
		s.Content = content
		sections[c.sectionID] = s
		used++
	}
	return markdown.Reassemble(sections), used
}

// usableOutput extracts a task's final content, or "" when the task did
// not complete or produced a placeholder.
func (e *Enhancer) usableOutput(res *execResult, ref task.Ref) string {
	out, ok := res.output(ref)
	if !ok {
		return ""
	}
	content := markdown.ExtractFinalContent(out)
	if guard.IsPlaceholder(content, e.policy.MinLinkOutputChars) {
		return ""
	}
	return content
}

// mergeUsable reports whether a merged document clears the full bar:
// minimum document length, keep ratio, and heading structure.
func (e *Enhancer) mergeUsable(doc string, structure []string, result string) bool {
	if len(strings.TrimSpace(result)) < e.policy.MinDocumentChars {
		return false
	}
	return e.recoveryAcceptable(doc, structure, result)
}

// recoveryAcceptable is the universal floor under any produced output:
// at least the keep ratio of the original's length, and every original
// heading present in order.
func (e *Enhancer) recoveryAcceptable(doc string, structure []string, result string) bool {
	if float64(len(result)) < e.policy.MinKeepRatio*float64(len(doc)) {
		return false
	}
	return structureKept(structure, result)
}

// structureKept reports whether every captured heading line appears in
// the candidate unchanged and in order. Extra headings are fine; missing
// or reordered ones are not.
func structureKept(structure []string, candidate string) bool {
	return markdown.HeadingsPreserved(structure, candidate)
}

// saveNotes records each chain's final content for future runs' recall.
// Best effort: failures surface as warnings, never as run errors.
func (e *Enhancer) saveNotes(ctx context.Context, p *plan, res *execResult, runID string) {
	var notes []memory.Note
	for _, c := range p.chains {
		content := e.usableOutput(res, c.linkRef)
		if content == "" {
			continue
		}
		section := c.original.Title
		if section == "" {
			section = c.sectionID
		}
		notes = append(notes, memory.Note{
			RunID:   runID,
			Section: section,
			Stage:   string(task.StageLink),
			Content: content,
		})
	}
	if len(notes) == 0 {
		return
	}
	if err := e.memory.SaveNotes(ctx, notes); err != nil {
		e.progressf("  warning: saving notes failed: %v\n", err)
	}
}

// finish stamps the report, records it, and emits the summary line.
func (e *Enhancer) finish(ctx context.Context, final string, report types.RunReport) (string, types.RunReport) {
	report.OutputChars = len(final)
	report.Finished = time.Now()
	if err := e.memory.RecordRun(ctx, report); err != nil {
		e.progressf("  warning: recording run failed: %v\n", err)
	}
	e.progressf("\nrun %s: %s, %d enriched, %d failed, %d repaired (%d -> %d chars)\n",
		shortID(report.RunID), report.State, report.Enriched, report.Failed,
		len(report.Repaired), report.InputChars, report.OutputChars)
	return final, report
}

// progressf serializes progress writes; concurrent chains report through
// the same writer.
func (e *Enhancer) progressf(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.progress, format, args...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
