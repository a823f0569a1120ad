package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/pdiddy/doc-engine/internal/agent"
	"github.com/pdiddy/doc-engine/internal/markdown"
	"github.com/pdiddy/doc-engine/internal/memory"
	"github.com/pdiddy/doc-engine/internal/task"
	"github.com/pdiddy/doc-engine/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDoc = `# Title

Intro paragraph for the document.

## History

Built in 1889 for the fair.

## Visitors

Six million people visit every year.`

const enhancedDoc = "# Title\n\nIntro paragraph for the document. Extra context follows.\n\n" +
	"## History\n\nBuilt in 1889 for the fair. Extra context follows.\n\n" +
	"## Visitors\n\nSix million people visit every year. Extra context follows."

// --- stub runner ---

type stubCall struct {
	role        string
	instruction string
}

// stubRunner records every call and answers through fn. It tracks how
// many calls run at once so tests can assert the concurrency bound.
type stubRunner struct {
	mu          sync.Mutex
	calls       []stubCall
	inFlight    int
	maxInFlight int
	delay       time.Duration
	fn          func(role agent.Role, instruction string) (string, error)
}

func (r *stubRunner) Name() string { return "stub" }

func (r *stubRunner) Run(_ context.Context, role agent.Role, instruction string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, stubCall{role.Name, instruction})
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
	return r.fn(role, instruction)
}

func (r *stubRunner) snapshot() []stubCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stubCall(nil), r.calls...)
}

// scripted emulates well-behaved stage models: enrich appends one
// sentence, verify and link pass their input through, and edit zips the
// heading structure with the section bodies into a fenced document.
func scripted(_ agent.Role, instruction string) (string, error) {
	switch stageOf(instruction) {
	case task.StageEnrich:
		return between(instruction, "Original section text:\n---\n", "\n---\n\nExpected output:") +
			" Extra context follows.", nil
	case task.StageVerify:
		return between(instruction, "Input text to verify:\n---\n", "\n---\n\nExpected output:"), nil
	case task.StageLink:
		return between(instruction, "Input text to link:\n---\n", "\n---\n\nExpected output:"), nil
	case task.StageEdit:
		return mergeInstruction(instruction), nil
	}
	return "", errors.New("unrecognized instruction")
}

func stageOf(instruction string) task.Stage {
	switch {
	case strings.HasPrefix(instruction, "You are enriching"):
		return task.StageEnrich
	case strings.HasPrefix(instruction, "You are fact-checking"):
		return task.StageVerify
	case strings.HasPrefix(instruction, "You are adding encyclopedia links"):
		return task.StageLink
	case strings.HasPrefix(instruction, "You are performing the final editorial pass"):
		return task.StageEdit
	}
	return ""
}

func titleOf(instruction string) string {
	rest := between(instruction, "Section title: ", "\n")
	return rest
}

func between(s, open, close string) string {
	i := strings.Index(s, open)
	if i < 0 {
		return ""
	}
	s = s[i+len(open):]
	j := strings.Index(s, close)
	if j < 0 {
		return s
	}
	return s[:j]
}

// mergeInstruction rebuilds a document from an edit instruction: the
// heading lines it declares, zipped with the section bodies it carries,
// wrapped in a Markdown fence.
func mergeInstruction(instruction string) string {
	block := between(instruction, "unchanged and in this order:\n", "The enhanced section bodies follow")
	var headings []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) != "" {
			headings = append(headings, line)
		}
	}

	parts := strings.Split(instruction, "\n\n--- section ---\n")
	bodies := parts[1:]
	if len(bodies) > 0 {
		last := len(bodies) - 1
		bodies[last] = strings.TrimSuffix(bodies[last],
			"\n\nExpected output: the complete final Markdown document.")
	}

	var blocks []string
	if len(headings) == len(bodies) {
		for i, h := range headings {
			blocks = append(blocks, h, bodies[i])
		}
	} else {
		blocks = append(blocks, headings...)
		blocks = append(blocks, bodies...)
	}
	return "```markdown\n" + strings.Join(blocks, "\n\n") + "\n```"
}

func newEnhancer(t *testing.T, r agent.Runner, opts Options) *Enhancer {
	t.Helper()
	old := backoffBase
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = old })

	e, err := New(r, agent.Roles{}, nil, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// --- construction ---

func TestNewRequiresRunner(t *testing.T) {
	if _, err := New(nil, agent.Roles{}, nil, nil, Options{}); err == nil {
		t.Fatal("expected error for nil runner")
	}
}

// --- happy path ---

func TestEnhanceHappyPath(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	out, report := e.Enhance(context.Background(), testDoc)

	if out != enhancedDoc {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", out, enhancedDoc)
	}
	if report.State != types.RunCompleted {
		t.Errorf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if report.Sections != 3 {
		t.Errorf("Sections = %d, want 3", report.Sections)
	}
	if report.Enriched != 3 {
		t.Errorf("Enriched = %d, want 3", report.Enriched)
	}
	if report.Failed != 0 {
		t.Errorf("Failed = %d, want 0", report.Failed)
	}
	if len(report.Repaired) != 0 {
		t.Errorf("Repaired = %v, want none", report.Repaired)
	}
	if report.InputChars != len(testDoc) || report.OutputChars != len(out) {
		t.Errorf("chars = %d -> %d, want %d -> %d",
			report.InputChars, report.OutputChars, len(testDoc), len(out))
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Started.IsZero() || report.Finished.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestEnhanceSectionsOnlyGrow(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	out, _ := e.Enhance(context.Background(), testDoc)

	original := markdown.ParseSections(testDoc)
	enhanced := markdown.ParseSections(out)
	for id, orig := range original {
		got, ok := enhanced[id]
		if !ok {
			t.Fatalf("section %s missing from output", id)
		}
		if !strings.Contains(got.Content, orig.Content) {
			t.Errorf("section %s lost original content %q", id, orig.Content)
		}
		if len(got.Content) < len(orig.Content) {
			t.Errorf("section %s shrank: %d < %d", id, len(got.Content), len(orig.Content))
		}
	}
}

func TestEnhanceEmptyDocument(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	out, report := e.Enhance(context.Background(), "")
	if out != "" {
		t.Errorf("output = %q, want empty", out)
	}
	if report.State != types.RunCompleted {
		t.Errorf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if len(r.snapshot()) != 0 {
		t.Errorf("runner was called %d times for an empty document", len(r.snapshot()))
	}
}

func TestEnhanceNoSectionBodies(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	doc := "# One\n\n## Two"
	out, report := e.Enhance(context.Background(), doc)
	if out != doc {
		t.Errorf("output = %q, want unchanged input", out)
	}
	if report.State != types.RunCompleted {
		t.Errorf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if !strings.Contains(report.Advisory, "no section bodies") {
		t.Errorf("Advisory = %q, want a no-section-bodies note", report.Advisory)
	}
}

func TestEnhancePreambleOnlyDocument(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	out, report := e.Enhance(context.Background(), "Just plain text, no headings here at all.")
	want := "Just plain text, no headings here at all. Extra context follows."
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if report.State != types.RunCompleted {
		t.Errorf("State = %q, want %q", report.State, types.RunCompleted)
	}
}

// --- ordering and roles ---

func TestEnhanceRunsStagesInDependencyOrder(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	e.Enhance(context.Background(), testDoc)
	calls := r.snapshot()

	enrichAt := map[string]int{}
	linkAt := map[string]int{}
	editAt := -1
	for i, c := range calls {
		switch stageOf(c.instruction) {
		case task.StageEnrich:
			enrichAt[titleOf(c.instruction)] = i
			if c.role != agent.RoleResearcher {
				t.Errorf("enrich ran as %q, want %q", c.role, agent.RoleResearcher)
			}
		case task.StageLink:
			linkAt[titleOf(c.instruction)] = i
			if c.role != agent.RoleWikiLinker {
				t.Errorf("link ran as %q, want %q", c.role, agent.RoleWikiLinker)
			}
		case task.StageVerify:
			t.Error("verify stage ran but was not enabled")
		case task.StageEdit:
			if editAt >= 0 {
				t.Error("edit ran more than once")
			}
			editAt = i
			if c.role != agent.RoleMarkdownEditor {
				t.Errorf("edit ran as %q, want %q", c.role, agent.RoleMarkdownEditor)
			}
		}
	}

	for _, title := range []string{"Title", "History", "Visitors"} {
		ei, ok := enrichAt[title]
		if !ok {
			t.Fatalf("no enrich call for %q", title)
		}
		li, ok := linkAt[title]
		if !ok {
			t.Fatalf("no link call for %q", title)
		}
		if ei >= li {
			t.Errorf("%q: enrich at %d did not precede link at %d", title, ei, li)
		}
		if li >= editAt {
			t.Errorf("%q: link at %d did not precede edit at %d", title, li, editAt)
		}
	}
	if editAt != len(calls)-1 {
		t.Errorf("edit at %d is not the final call of %d", editAt, len(calls))
	}
}

func TestEnhanceVerifyStage(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{Enhance: types.EnhanceConfig{Verify: true}})

	out, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunCompleted {
		t.Fatalf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if out != enhancedDoc {
		t.Errorf("output mismatch with verify enabled\ngot:\n%s", out)
	}

	counts := map[task.Stage]int{}
	for _, c := range r.snapshot() {
		counts[stageOf(c.instruction)]++
	}
	want := map[task.Stage]int{
		task.StageEnrich: 3, task.StageVerify: 3, task.StageLink: 3, task.StageEdit: 1,
	}
	for stage, n := range want {
		if counts[stage] != n {
			t.Errorf("%s calls = %d, want %d", stage, counts[stage], n)
		}
	}
}

func TestEnhanceEditSeesAllLinkOutputs(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	e.Enhance(context.Background(), testDoc)

	var edit string
	for _, c := range r.snapshot() {
		if stageOf(c.instruction) == task.StageEdit {
			edit = c.instruction
		}
	}
	if edit == "" {
		t.Fatal("edit was never called")
	}
	for _, body := range []string{
		"Intro paragraph for the document. Extra context follows.",
		"Built in 1889 for the fair. Extra context follows.",
		"Six million people visit every year. Extra context follows.",
	} {
		if !strings.Contains(edit, body) {
			t.Errorf("edit instruction missing dependency output %q", body)
		}
	}
}

// --- recovery ---

func TestEnhanceTotalFailure(t *testing.T) {
	r := &stubRunner{fn: func(agent.Role, string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	e := newEnhancer(t, r, Options{MaxRetries: 1})

	out, report := e.Enhance(context.Background(), testDoc)
	if out != testDoc {
		t.Errorf("output differs from input on total failure\ngot:\n%s", out)
	}
	if report.State != types.RunRejected {
		t.Errorf("State = %q, want %q", report.State, types.RunRejected)
	}
	if report.Failed != 7 {
		t.Errorf("Failed = %d, want 7 (3 enrich, 3 poisoned links, poisoned edit)", report.Failed)
	}
	if report.Enriched != 0 {
		t.Errorf("Enriched = %d, want 0", report.Enriched)
	}
	// Only enrich tasks reach the runner: two attempts each.
	if calls := len(r.snapshot()); calls != 6 {
		t.Errorf("runner calls = %d, want 6", calls)
	}
}

func TestEnhancePartialFailure(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageEnrich && titleOf(instruction) == "Visitors" {
			return "", errors.New("model unavailable")
		}
		return scripted(role, instruction)
	}}
	e := newEnhancer(t, r, Options{MaxRetries: 1})

	out, report := e.Enhance(context.Background(), testDoc)

	if report.State != types.RunRecovered {
		t.Errorf("State = %q, want %q", report.State, types.RunRecovered)
	}
	if report.Enriched != 2 {
		t.Errorf("Enriched = %d, want 2", report.Enriched)
	}
	if report.Failed != 3 {
		t.Errorf("Failed = %d, want 3 (enrich, poisoned link, poisoned edit)", report.Failed)
	}
	if !strings.Contains(out, "Built in 1889 for the fair. Extra context follows.") {
		t.Error("surviving chain's output missing from the rebuilt document")
	}
	if !strings.Contains(out, "Six million people visit every year.") {
		t.Error("failed chain's original content missing from the rebuilt document")
	}
	if strings.Contains(out, "Six million people visit every year. Extra context follows.") {
		t.Error("failed chain unexpectedly carries enhanced content")
	}
	if !strings.Contains(report.Advisory, "rebuilt") {
		t.Errorf("Advisory = %q, want a rebuild note", report.Advisory)
	}
}

func TestEnhanceMergeBelowThresholdRebuilds(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageEdit {
			return "ok", nil
		}
		return scripted(role, instruction)
	}}
	e := newEnhancer(t, r, Options{})

	out, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunRecovered {
		t.Errorf("State = %q, want %q", report.State, types.RunRecovered)
	}
	if out != enhancedDoc {
		t.Errorf("rebuilt document mismatch\ngot:\n%s\nwant:\n%s", out, enhancedDoc)
	}
}

func TestEnhanceMergeDroppingHeadingRebuilds(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageEdit {
			merged := mergeInstruction(instruction)
			return strings.Replace(merged, "## History\n\n", "", 1), nil
		}
		return scripted(role, instruction)
	}}
	e := newEnhancer(t, r, Options{})

	out, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunRecovered {
		t.Errorf("State = %q, want %q", report.State, types.RunRecovered)
	}
	if !strings.Contains(out, "## History") {
		t.Error("dropped heading was not restored by the rebuild")
	}
	if out != enhancedDoc {
		t.Errorf("rebuilt document mismatch\ngot:\n%s", out)
	}
}

func TestEnhanceGuardRepairsPlaceholderSection(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageEdit {
			merged := mergeInstruction(instruction)
			return strings.Replace(merged,
				"Built in 1889 for the fair. Extra context follows.", "<!-- empty -->", 1), nil
		}
		return scripted(role, instruction)
	}}
	e := newEnhancer(t, r, Options{})

	out, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunPartiallyRecovered {
		t.Errorf("State = %q, want %q", report.State, types.RunPartiallyRecovered)
	}
	if len(report.Repaired) != 1 || report.Repaired[0] != "section_1" {
		t.Errorf("Repaired = %v, want [section_1]", report.Repaired)
	}
	if !strings.Contains(out, "Built in 1889 for the fair.") {
		t.Error("placeholder section was not restored from the original")
	}
	if strings.Contains(out, "<!--") {
		t.Error("placeholder marker survived the repair")
	}
}

func TestEnhanceRejectsShrunkenRecovery(t *testing.T) {
	long := strings.Repeat("Every sentence in this section carries real information. ", 3)
	doc := "# A\n\n" + long + "\n\n## B\n\n" + long + "\n\n## C\n\n" + long

	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		switch stageOf(instruction) {
		case task.StageEdit:
			return "", errors.New("model unavailable")
		case task.StageLink:
			return "tiny output.", nil
		default:
			return scripted(role, instruction)
		}
	}}
	e := newEnhancer(t, r, Options{MaxRetries: 1})

	out, report := e.Enhance(context.Background(), doc)
	if out != doc {
		t.Errorf("output differs from input after rejected recovery\ngot:\n%s", out)
	}
	if report.State != types.RunRejected {
		t.Errorf("State = %q, want %q", report.State, types.RunRejected)
	}
	if !strings.Contains(report.Advisory, "keep ratio") {
		t.Errorf("Advisory = %q, want a keep-ratio note", report.Advisory)
	}
}

func TestEnhanceRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	r := &stubRunner{}
	r.fn = func(role agent.Role, instruction string) (string, error) {
		mu.Lock()
		if failures > 0 {
			failures--
			mu.Unlock()
			return "", errors.New("throttled")
		}
		mu.Unlock()
		return scripted(role, instruction)
	}
	e := newEnhancer(t, r, Options{MaxRetries: 2})

	out, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunCompleted {
		t.Fatalf("State = %q, want %q after retries", report.State, types.RunCompleted)
	}
	if out != enhancedDoc {
		t.Error("output mismatch after retried run")
	}
	if calls := len(r.snapshot()); calls != 9 {
		t.Errorf("runner calls = %d, want 9 (7 tasks + 2 retries)", calls)
	}
}

func TestEnhanceCancelledContext(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, report := e.Enhance(ctx, testDoc)
	if out != testDoc {
		t.Errorf("output differs from input under cancellation\ngot:\n%s", out)
	}
	if report.State != types.RunRejected {
		t.Errorf("State = %q, want %q", report.State, types.RunRejected)
	}
	if calls := len(r.snapshot()); calls != 0 {
		t.Errorf("runner calls = %d, want 0", calls)
	}
}

// --- run shape ---

func TestEnhanceMaxSections(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e := newEnhancer(t, r, Options{Enhance: types.EnhanceConfig{MaxSections: 1}})

	out, _ := e.Enhance(context.Background(), testDoc)

	enrich := 0
	for _, c := range r.snapshot() {
		if stageOf(c.instruction) == task.StageEnrich {
			enrich++
		}
	}
	if enrich != 1 {
		t.Errorf("enrich calls = %d, want 1 under MaxSections=1", enrich)
	}
	for _, h := range []string{"# Title", "## History", "## Visitors"} {
		if !strings.Contains(out, h) {
			t.Errorf("output missing heading %q", h)
		}
	}
}

const wideDoc = `# One

Alpha section body text here.

## Two

Beta section body text here.

## Three

Gamma section body text here.

## Four

Delta section body text here.`

func TestEnhanceSequentialByDefault(t *testing.T) {
	r := &stubRunner{fn: scripted, delay: 5 * time.Millisecond}
	e := newEnhancer(t, r, Options{})

	_, report := e.Enhance(context.Background(), wideDoc)
	if report.State != types.RunCompleted {
		t.Fatalf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if r.maxInFlight != 1 {
		t.Errorf("maxInFlight = %d, want 1 for the default sequential run", r.maxInFlight)
	}
}

func TestEnhanceConcurrencyBound(t *testing.T) {
	r := &stubRunner{fn: scripted, delay: 20 * time.Millisecond}
	e := newEnhancer(t, r, Options{Enhance: types.EnhanceConfig{Concurrency: 2}})

	_, report := e.Enhance(context.Background(), wideDoc)
	if report.State != types.RunCompleted {
		t.Fatalf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if r.maxInFlight > 2 {
		t.Errorf("maxInFlight = %d, exceeded the bound of 2", r.maxInFlight)
	}
	if r.maxInFlight < 2 {
		t.Errorf("maxInFlight = %d, independent chains never overlapped", r.maxInFlight)
	}
}

// --- reference material ---

type fakeLookup struct {
	fail      bool
	summaries map[string]string
	related   []string
}

func (f *fakeLookup) Search(_ context.Context, query string, limit int) ([]string, error) {
	if f.fail {
		return nil, errors.New("lookup down")
	}
	if limit < len(f.related) {
		return f.related[:limit], nil
	}
	return f.related, nil
}

func (f *fakeLookup) Summary(_ context.Context, title string, _ int) (string, error) {
	if f.fail {
		return "", errors.New("lookup down")
	}
	return f.summaries[title], nil
}

func (f *fakeLookup) CanonicalURL(_ context.Context, title string) (string, error) {
	if f.fail {
		return "", errors.New("lookup down")
	}
	return "https://fr.wikipedia.org/wiki/" + strings.ReplaceAll(title, " ", "_"), nil
}

func TestEnhanceInjectsLookupContext(t *testing.T) {
	fl := &fakeLookup{
		summaries: map[string]string{"History": "The fair marked the centenary of the revolution."},
		related:   []string{"Paris", "World Fair"},
	}
	r := &stubRunner{fn: scripted}
	e, err := New(r, agent.Roles{}, fl, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}

	_, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunCompleted {
		t.Fatalf("State = %q, want %q", report.State, types.RunCompleted)
	}

	var enrichHistory, linkHistory, edit string
	for _, c := range r.snapshot() {
		switch stageOf(c.instruction) {
		case task.StageEnrich:
			if titleOf(c.instruction) == "History" {
				enrichHistory = c.instruction
			}
		case task.StageLink:
			if titleOf(c.instruction) == "History" {
				linkHistory = c.instruction
			}
		case task.StageEdit:
			edit = c.instruction
		}
	}

	if !strings.Contains(enrichHistory, `Encyclopedia summary for "History"`) ||
		!strings.Contains(enrichHistory, "The fair marked the centenary of the revolution.") {
		t.Error("enrich instruction missing the encyclopedia summary")
	}
	if !strings.Contains(enrichHistory, "Related encyclopedia articles: Paris; World Fair") {
		t.Error("enrich instruction missing related articles")
	}
	if !strings.Contains(linkHistory, "Known article URLs for Markdown links:") ||
		!strings.Contains(linkHistory, "https://fr.wikipedia.org/wiki/History") ||
		!strings.Contains(linkHistory, "https://fr.wikipedia.org/wiki/Paris") {
		t.Error("link instruction missing known article URLs")
	}
	if strings.Contains(edit, "Reference material") {
		t.Error("edit instruction unexpectedly carries reference material")
	}
}

func TestEnhanceLookupFailuresAreNonFatal(t *testing.T) {
	r := &stubRunner{fn: scripted}
	e, err := New(r, agent.Roles{}, &fakeLookup{fail: true}, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}

	out, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunCompleted {
		t.Errorf("State = %q, want %q", report.State, types.RunCompleted)
	}
	if out != enhancedDoc {
		t.Error("output mismatch when lookups fail")
	}
}

// --- memory integration ---

func TestEnhanceRecordsRunAndNotes(t *testing.T) {
	store, err := memory.NewStore(types.MemoryConfig{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	r := &stubRunner{fn: scripted}
	e, err := New(r, agent.Roles{}, nil, store, Options{})
	if err != nil {
		t.Fatal(err)
	}

	_, report := e.Enhance(context.Background(), testDoc)
	if report.State != types.RunCompleted {
		t.Fatalf("State = %q, want %q", report.State, types.RunCompleted)
	}

	st, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Runs != 1 {
		t.Errorf("Runs = %d, want 1", st.Runs)
	}
	if st.Notes != 3 {
		t.Errorf("Notes = %d, want 3", st.Notes)
	}
	if st.LastState != string(types.RunCompleted) {
		t.Errorf("LastState = %q, want %q", st.LastState, types.RunCompleted)
	}

	results, err := store.Recall(context.Background(), "1889", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Section != "History" {
		t.Errorf("Recall results = %v, want the History note", results)
	}
}

func TestEnhanceRecallsNotesFromPreviousRuns(t *testing.T) {
	store, err := memory.NewStore(types.MemoryConfig{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	seed := memory.Note{
		RunID:   "seed-run",
		Section: "History",
		Stage:   "link",
		Content: "History notes: the fair opened in May 1889.",
	}
	if err := store.SaveNote(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	r := &stubRunner{fn: scripted}
	e, err := New(r, agent.Roles{}, nil, store, Options{})
	if err != nil {
		t.Fatal(err)
	}
	e.Enhance(context.Background(), testDoc)

	var enrichHistory string
	for _, c := range r.snapshot() {
		if stageOf(c.instruction) == task.StageEnrich && titleOf(c.instruction) == "History" {
			enrichHistory = c.instruction
		}
	}
	if !strings.Contains(enrichHistory, "Notes from previous runs:") ||
		!strings.Contains(enrichHistory, "May 1889") {
		t.Error("enrich instruction missing recalled notes")
	}
}

// --- progress ---

func TestEnhanceProgressOutput(t *testing.T) {
	var buf bytes.Buffer
	r := &stubRunner{fn: scripted}
	e, err := New(r, agent.Roles{}, nil, nil, Options{Progress: &buf})
	if err != nil {
		t.Fatal(err)
	}

	e.Enhance(context.Background(), testDoc)

	out := buf.String()
	if !strings.Contains(out, "running: enrich (Title)") {
		t.Errorf("progress missing stage line:\n%s", out)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("progress missing summary state:\n%s", out)
	}
}

// --- helpers ---

func TestStructureKept(t *testing.T) {
	structure := []string{"# A", "## B", "## C"}
	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"exact", "# A\n\nx\n\n## B\n\ny\n\n## C\n\nz", true},
		{"extra headings welcome", "# A\n\n## A2\n\nx\n\n## B\n\n## C\n\nz", true},
		{"missing heading", "# A\n\nx\n\n## C\n\nz", false},
		{"reordered", "# A\n\n## C\n\n## B", false},
		{"renamed", "# A\n\n## B2\n\n## C", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := structureKept(structure, tt.candidate); got != tt.want {
				t.Errorf("structureKept = %v, want %v", got, tt.want)
			}
		})
	}

	if !structureKept(nil, "anything at all") {
		t.Error("empty structure should always be kept")
	}
}
