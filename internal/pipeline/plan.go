// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"strings"

	"github.com/pdiddy/doc-engine/internal/markdown"
	"github.com/pdiddy/doc-engine/internal/task"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// chain records one section's stage run and the snapshot needed to
// recover it: which link task feeds the final merge, and what the
// section originally contained.
type chain struct {
	sectionID string
	original  types.Section
	linkRef   task.Ref
}

// plan is the task arena for one run: per-section chains converging on a
// single edit task, plus the heading structure the output must still
// satisfy. Dependencies always reference lower arena indices, so the
// arena order is already topological.
type plan struct {
	tasks     []*task.Task
	chains    []chain
	editRef   task.Ref
	structure []string
	snapshot  map[string]types.Section
}

func (p *plan) add(t *task.Task) task.Ref {
	ref := task.Ref(len(p.tasks))
	t.Ref = ref
	p.tasks = append(p.tasks, t)
	return ref
}

// buildPlan lays out the run's task graph. Sections are taken in
// position order; empty bodies are skipped, and a positive MaxSections
// caps how many chains are built. Each chain is Enrich→Link, with a
// Verify stage in between when configured. One Edit task depends on
// every chain's link output. A plan without chains has no edit task.
func (e *Enhancer) buildPlan(sections map[string]types.Section) (*plan, error) {
	builder := task.NewBuilder(e.policy)
	p := &plan{
		structure: markdown.Headings(sections),
		snapshot:  sections,
	}

	var linkRefs []task.Ref
	for _, s := range markdown.Ordered(sections) {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		if e.enhance.MaxSections > 0 && len(p.chains) >= e.enhance.MaxSections {
			break
		}

		enrichPrompt, err := builder.Enrich(s)
		if err != nil {
			return nil, err
		}
		prev := p.add(&task.Task{
			Kind:         task.StageEnrich,
			SectionID:    s.ID,
			SectionTitle: s.Title,
			Role:         e.roles.ForStage(task.StageEnrich).Name,
			Prompt:       enrichPrompt,
			Tools:        []string{toolSummary, toolSearch},
		})

		if e.enhance.Verify {
			verifyPrompt, err := builder.Verify(s, prev)
			if err != nil {
				return nil, err
			}
			prev = p.add(&task.Task{
				Kind:         task.StageVerify,
				SectionID:    s.ID,
				SectionTitle: s.Title,
				Role:         e.roles.ForStage(task.StageVerify).Name,
				Prompt:       verifyPrompt,
				DependsOn:    []task.Ref{prev},
				Tools:        []string{toolSummary},
			})
		}

		linkPrompt, err := builder.Link(s, prev)
		if err != nil {
			return nil, err
		}
		linkRef := p.add(&task.Task{
			Kind:         task.StageLink,
			SectionID:    s.ID,
			SectionTitle: s.Title,
			Role:         e.roles.ForStage(task.StageLink).Name,
			Prompt:       linkPrompt,
			DependsOn:    []task.Ref{prev},
			Tools:        []string{toolURL},
		})

		p.chains = append(p.chains, chain{sectionID: s.ID, original: s, linkRef: linkRef})
		linkRefs = append(linkRefs, linkRef)
	}

	if len(p.chains) == 0 {
		return p, nil
	}

	editPrompt, err := builder.Edit(p.structure, linkRefs)
	if err != nil {
		return nil, err
	}
	p.editRef = p.add(&task.Task{
		Kind:      task.StageEdit,
		Role:      e.roles.ForStage(task.StageEdit).Name,
		Prompt:    editPrompt,
		DependsOn: linkRefs,
	})
	return p, nil
}
