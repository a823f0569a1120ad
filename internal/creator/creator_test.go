package creator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pdiddy/doc-engine/internal/agent"
	"github.com/pdiddy/doc-engine/internal/task"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// --- stub runner ---

type stubCall struct {
	role        string
	instruction string
}

type stubRunner struct {
	mu    sync.Mutex
	calls []stubCall
	fn    func(role agent.Role, instruction string) (string, error)
}

func (r *stubRunner) Name() string { return "stub" }

func (r *stubRunner) Run(_ context.Context, role agent.Role, instruction string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, stubCall{role.Name, instruction})
	r.mu.Unlock()
	return r.fn(role, instruction)
}

func (r *stubRunner) snapshot() []stubCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stubCall(nil), r.calls...)
}

func stageOf(instruction string) task.Stage {
	switch {
	case strings.HasPrefix(instruction, "You are planning the section structure"):
		return task.StageOutline
	case strings.HasPrefix(instruction, "You are writing one section"):
		return task.StageCompose
	case strings.HasPrefix(instruction, "You are the chief editor"):
		return task.StageReview
	}
	return ""
}

func titleOf(instruction string) string {
	return between(instruction, "Section title: ", "\n")
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

func sectionBody(title string) string {
	return "The " + title + " section, written with enough supporting detail to clear the length gate."
}

// scripted emulates well-behaved stage models: the planner proposes
// History and Design, the writer produces a fixed body per title, and
// the reviewer returns the draft unchanged.
func scripted(_ agent.Role, instruction string) (string, error) {
	switch stageOf(instruction) {
	case task.StageOutline:
		return "- \"History\"\n- \"Design\"", nil
	case task.StageCompose:
		return sectionBody(titleOf(instruction)), nil
	case task.StageReview:
		return between(instruction, "Draft document:\n---\n", "\n---\n\nExpected output:"), nil
	}
	return "", errors.New("unrecognized instruction")
}

func draftDoc(title string, sectionTitles ...string) string {
	blocks := []string{"# " + title}
	for _, t := range sectionTitles {
		blocks = append(blocks, "## "+t, sectionBody(t))
	}
	return strings.Join(blocks, "\n\n")
}

func newCreator(t *testing.T, r agent.Runner, opts Options) *Creator {
	t.Helper()
	c, err := New(r, agent.Roles{}, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// --- construction ---

func TestNewRequiresRunner(t *testing.T) {
	if _, err := New(nil, agent.Roles{}, nil, Options{}); err == nil {
		t.Fatal("expected error for nil runner")
	}
}

func TestCreateRequiresTopic(t *testing.T) {
	c := newCreator(t, &stubRunner{fn: scripted}, Options{})
	for _, topic := range []string{"", "  \t\n"} {
		if _, err := c.Create(context.Background(), topic); err == nil {
			t.Errorf("Create(%q) succeeded, want error", topic)
		}
	}
}

// --- creation ---

func TestCreateHappyPath(t *testing.T) {
	var buf bytes.Buffer
	r := &stubRunner{fn: scripted}
	c := newCreator(t, r, Options{Progress: &buf})

	out, err := c.Create(context.Background(), "Eiffel Tower")
	if err != nil {
		t.Fatal(err)
	}

	want := draftDoc("Eiffel Tower", "History", "Design")
	if out != want {
		t.Errorf("document mismatch\ngot:\n%s\nwant:\n%s", out, want)
	}

	counts := map[task.Stage]int{}
	for _, call := range r.snapshot() {
		stage := stageOf(call.instruction)
		counts[stage]++
		switch stage {
		case task.StageOutline, task.StageReview:
			if call.role != agent.RoleChiefEditor {
				t.Errorf("%s ran as %q, want %q", stage, call.role, agent.RoleChiefEditor)
			}
		case task.StageCompose:
			if call.role != agent.RoleContentWriter {
				t.Errorf("compose ran as %q, want %q", call.role, agent.RoleContentWriter)
			}
		}
	}
	for stage, n := range map[task.Stage]int{
		task.StageOutline: 1, task.StageCompose: 2, task.StageReview: 1,
	} {
		if counts[stage] != n {
			t.Errorf("%s calls = %d, want %d", stage, counts[stage], n)
		}
	}

	progress := buf.String()
	if !strings.Contains(progress, "composing: History") {
		t.Errorf("progress missing compose line:\n%s", progress)
	}
	if !strings.Contains(progress, "created \"Eiffel Tower\": 2/2 sections composed") {
		t.Errorf("progress missing summary:\n%s", progress)
	}
}

func TestCreateFromOutline(t *testing.T) {
	r := &stubRunner{fn: scripted}
	c := newCreator(t, r, Options{})

	outline := types.Outline{
		Title: "Custom Title",
		Sections: []types.OutlineSection{
			{Title: "Alpha", Description: "What alpha covers, in enough words."},
			{Title: "Beta"},
		},
	}
	out, err := c.CreateFromOutline(context.Background(), "some topic", outline)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(out, "# Custom Title\n") {
		t.Errorf("output does not open with the outline title:\n%s", out)
	}
	for _, h := range []string{"## Alpha", "## Beta"} {
		if !strings.Contains(out, h) {
			t.Errorf("output missing heading %q", h)
		}
	}

	var composeAlpha string
	for _, call := range r.snapshot() {
		if stageOf(call.instruction) == task.StageOutline {
			t.Error("planning stage ran despite a provided outline")
		}
		if stageOf(call.instruction) == task.StageCompose && titleOf(call.instruction) == "Alpha" {
			composeAlpha = call.instruction
		}
	}
	if !strings.Contains(composeAlpha, "What alpha covers, in enough words.") {
		t.Error("section description missing from the compose research context")
	}
}

func TestCreateFromOutlineRequiresSections(t *testing.T) {
	c := newCreator(t, &stubRunner{fn: scripted}, Options{})
	if _, err := c.CreateFromOutline(context.Background(), "topic", types.Outline{}); err == nil {
		t.Fatal("expected error for an outline without sections")
	}
}

func TestCreateCancelledContext(t *testing.T) {
	c := newCreator(t, &stubRunner{fn: scripted}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Create(ctx, "anything"); err == nil {
		t.Fatal("expected error for a cancelled context")
	}
}

// --- degradation ---

func TestCreatePlanningFailureUsesDefaultOutline(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageOutline {
			return "", errors.New("model unavailable")
		}
		return scripted(role, instruction)
	}}
	c := newCreator(t, r, Options{})

	out, err := c.Create(context.Background(), "Deep Sea Mining")
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range []string{"## Introduction", "## Overview", "## Details", "## References"} {
		if !strings.Contains(out, h) {
			t.Errorf("output missing default outline heading %q", h)
		}
	}
}

func TestCreateUnparsableOutlineUsesDefault(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageOutline {
			return "I would start with history, then design considerations.", nil
		}
		return scripted(role, instruction)
	}}
	c := newCreator(t, r, Options{})

	out, err := c.Create(context.Background(), "Deep Sea Mining")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "## Introduction") {
		t.Errorf("output missing default outline:\n%s", out)
	}
}

func TestCreateTotalFailureReturnsScaffold(t *testing.T) {
	r := &stubRunner{fn: func(agent.Role, string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	c := newCreator(t, r, Options{})

	out, err := c.Create(context.Background(), "Space Elevators")
	if err != nil {
		t.Fatal(err)
	}
	want := "# Space Elevators\n\n## Introduction\n\n## Overview\n\n## Details\n\n## References"
	if out != want {
		t.Errorf("scaffold mismatch\ngot:\n%s\nwant:\n%s", out, want)
	}

	for _, call := range r.snapshot() {
		if stageOf(call.instruction) == task.StageReview {
			t.Error("review ran although nothing was composed")
		}
	}
}

func TestCreateFailedSectionKeepsDescription(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageCompose && titleOf(instruction) == "Beta" {
			return "", errors.New("model unavailable")
		}
		return scripted(role, instruction)
	}}
	c := newCreator(t, r, Options{})

	outline := types.Outline{Sections: []types.OutlineSection{
		{Title: "Alpha"},
		{Title: "Beta", Description: "A short sketch of what beta should say."},
	}}
	out, err := c.CreateFromOutline(context.Background(), "some topic", outline)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, sectionBody("Alpha")) {
		t.Error("composed section missing from the document")
	}
	if !strings.Contains(out, "A short sketch of what beta should say.") {
		t.Error("failed section did not fall back to its description")
	}
}

// --- review gate ---

func TestCreateReviewShrinkingDraftIsDiscarded(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageReview {
			return "Looks fine to me.", nil
		}
		return scripted(role, instruction)
	}}
	c := newCreator(t, r, Options{})

	out, err := c.Create(context.Background(), "Eiffel Tower")
	if err != nil {
		t.Fatal(err)
	}
	if want := draftDoc("Eiffel Tower", "History", "Design"); out != want {
		t.Errorf("draft was not kept over a degenerate review\ngot:\n%s", out)
	}
}

func TestCreateReviewHollowedSectionRestored(t *testing.T) {
	var buf bytes.Buffer
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageReview {
			draft := between(instruction, "Draft document:\n---\n", "\n---\n\nExpected output:")
			return strings.Replace(draft, sectionBody("History"), "<!-- cut for brevity -->", 1), nil
		}
		return scripted(role, instruction)
	}}
	c := newCreator(t, r, Options{Progress: &buf})

	out, err := c.Create(context.Background(), "Eiffel Tower")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, sectionBody("History")) {
		t.Error("hollowed section was not restored from the draft")
	}
	if strings.Contains(out, "<!--") {
		t.Error("placeholder marker survived the repair")
	}
	if !strings.Contains(buf.String(), "restored 1 section(s)") {
		t.Errorf("progress missing restore line:\n%s", buf.String())
	}
}

func TestCreateReviewDroppingHeadingIsDiscarded(t *testing.T) {
	r := &stubRunner{fn: func(role agent.Role, instruction string) (string, error) {
		if stageOf(instruction) == task.StageReview {
			draft := between(instruction, "Draft document:\n---\n", "\n---\n\nExpected output:")
			return strings.Replace(draft, "## Design\n\n", "", 1), nil
		}
		return scripted(role, instruction)
	}}
	c := newCreator(t, r, Options{})

	out, err := c.Create(context.Background(), "Eiffel Tower")
	if err != nil {
		t.Fatal(err)
	}
	if want := draftDoc("Eiffel Tower", "History", "Design"); out != want {
		t.Errorf("draft was not kept over a structure-dropping review\ngot:\n%s", out)
	}
}

// --- research context ---

type fakeResearcher struct {
	fail    bool
	summary string
	related []string
}

func (f *fakeResearcher) Search(_ context.Context, _ string, limit int) ([]string, error) {
	if f.fail {
		return nil, errors.New("lookup down")
	}
	if limit < len(f.related) {
		return f.related[:limit], nil
	}
	return f.related, nil
}

func (f *fakeResearcher) Summary(_ context.Context, _ string, _ int) (string, error) {
	if f.fail {
		return "", errors.New("lookup down")
	}
	return f.summary, nil
}

func TestCreateResearchContextInPrompts(t *testing.T) {
	fr := &fakeResearcher{
		summary: "A famous iron lattice tower on the Champ de Mars.",
		related: []string{"Gustave Eiffel", "Champ de Mars"},
	}
	r := &stubRunner{fn: scripted}
	c, err := New(r, agent.Roles{}, fr, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Create(context.Background(), "Eiffel Tower"); err != nil {
		t.Fatal(err)
	}

	for _, stage := range []task.Stage{task.StageOutline, task.StageCompose} {
		found := false
		for _, call := range r.snapshot() {
			if stageOf(call.instruction) != stage {
				continue
			}
			if strings.Contains(call.instruction, "A famous iron lattice tower on the Champ de Mars.") &&
				strings.Contains(call.instruction, "Related topics: Gustave Eiffel, Champ de Mars.") {
				found = true
			}
		}
		if !found {
			t.Errorf("%s instructions missing the research context", stage)
		}
	}
}

func TestCreateLookupFailureIsNonFatal(t *testing.T) {
	r := &stubRunner{fn: scripted}
	c, err := New(r, agent.Roles{}, &fakeResearcher{fail: true}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.Create(context.Background(), "Eiffel Tower")
	if err != nil {
		t.Fatal(err)
	}
	if want := draftDoc("Eiffel Tower", "History", "Design"); out != want {
		t.Errorf("output mismatch when lookups fail\ngot:\n%s", out)
	}
}

// --- outline files and parsing ---

func TestLoadOutline(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantErr  bool
		sections int
	}{
		{
			name: "valid outline",
			yaml: "title: My Document\nsections:\n  - title: Introduction\n    description: Sets the scene.\n  - title: Findings\n",
			sections: 2,
		},
		{name: "empty sections", yaml: "sections: []\n", wantErr: true},
		{name: "invalid yaml", yaml: ":::bad\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "outline.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			outline, err := LoadOutline(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(outline.Sections) != tt.sections {
				t.Errorf("sections = %d, want %d", len(outline.Sections), tt.sections)
			}
			if outline.Title != "My Document" {
				t.Errorf("title = %q, want %q", outline.Title, "My Document")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadOutline(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestParseOutlineTitles(t *testing.T) {
	long := make([]string, 15)
	for i := range long {
		long[i] = fmt.Sprintf("- Section %d", i)
	}

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain list", "- History\n- Design", []string{"History", "Design"}},
		{"quoted list", "- \"History\"\n- \"Design\"", []string{"History", "Design"}},
		{
			"fenced list",
			"Here is the plan:\n```yaml\n- History\n- Design\n```",
			[]string{"History", "Design"},
		},
		{"heading markers stripped", "- \"# History\"\n- \"## Design\"", []string{"History", "Design"}},
		{"duplicates dropped", "- History\n- history\n- Design", []string{"History", "Design"}},
		{"blank entries dropped", "- History\n- \"\"\n- Design", []string{"History", "Design"}},
		{"prose reply", "I would start with history, then design.", nil},
		{"empty reply", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOutlineTitles(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("titles = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("titles[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	t.Run("capped", func(t *testing.T) {
		got := parseOutlineTitles(strings.Join(long, "\n"))
		if len(got) != maxOutlineSections {
			t.Errorf("titles = %d, want cap of %d", len(got), maxOutlineSections)
		}
	})
}
