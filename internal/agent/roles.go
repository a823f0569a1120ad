// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/doc-engine/internal/task"
)

// Role names. Each pipeline stage runs under exactly one of these.
const (
	RoleResearcher     = "researcher"
	RoleFactChecker    = "fact-checker"
	RoleWikiLinker     = "wiki-linker"
	RoleMarkdownEditor = "markdown-editor"
	RoleContentWriter  = "content-writer"
	RoleChiefEditor    = "chief-editor"
)

// Role describes one agent persona: who it is, what it optimizes for,
// and the background framing its replies.
type Role struct {
	Name      string `yaml:"name"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
}

// SystemPrompt renders the role as the backend's system message.
func (r Role) SystemPrompt() string {
	return fmt.Sprintf("You are a %s. %s\nBackground: %s", r.Name, r.Goal, r.Backstory)
}

// builtinRoles returns the default persona set.
func builtinRoles() map[string]Role {
	return map[string]Role{
		RoleResearcher: {
			Name:      RoleResearcher,
			Goal:      "Enrich document sections with accurate, well-sourced context while preserving every original word.",
			Backstory: "A meticulous encyclopedist who augments text with verifiable facts and never rewrites what is already there.",
		},
		RoleFactChecker: {
			Name:      RoleFactChecker,
			Goal:      "Find and correct factually false claims, touching nothing else.",
			Backstory: "A newsroom fact-checker who values precision over style and cites sources for every correction.",
		},
		RoleWikiLinker: {
			Name:      RoleWikiLinker,
			Goal:      "Connect significant terms to their encyclopedia articles without altering the surrounding text.",
			Backstory: "A wiki gardener who links sparingly: only specific topics, only their first occurrence.",
		},
		RoleMarkdownEditor: {
			Name:      RoleMarkdownEditor,
			Goal:      "Merge enhanced sections into one coherent document that keeps every heading and every passage.",
			Backstory: "A technical editor who treats document structure as a contract and never deletes an author's content.",
		},
		RoleContentWriter: {
			Name:      RoleContentWriter,
			Goal:      "Write clear, well-grounded Markdown sections from research notes.",
			Backstory: "A staff writer who builds readable prose strictly from the material provided.",
		},
		RoleChiefEditor: {
			Name:      RoleChiefEditor,
			Goal:      "Give new documents a final pass for coherence and completeness without dropping content.",
			Backstory: "An editor-in-chief with a light pen: structure stays, content stays, rough edges go.",
		},
	}
}

// Roles is the effective persona set after applying file overrides.
type Roles struct {
	byName map[string]Role
}

// DefaultRoles returns the builtin persona set without overrides.
func DefaultRoles() Roles {
	return Roles{byName: builtinRoles()}
}

// IsZero reports whether the set was never initialized. Consumers
// substitute DefaultRoles for a zero value.
func (r Roles) IsZero() bool {
	return r.byName == nil
}

// LoadRoles returns the builtin roles, optionally overridden field by
// field from a YAML file mapping role name to {goal, backstory}. An
// unreadable or invalid file is a configuration failure.
func LoadRoles(path string) (Roles, error) {
	if path == "" {
		return DefaultRoles(), nil
	}
	roles := builtinRoles()

	data, err := os.ReadFile(path)
	if err != nil {
		return Roles{}, fmt.Errorf("reading roles file: %w", err)
	}
	var overrides map[string]Role
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Roles{}, fmt.Errorf("parsing roles file %s: %w", path, err)
	}

	for name, o := range overrides {
		r, ok := roles[name]
		if !ok {
			return Roles{}, fmt.Errorf("roles file %s: unknown role %q", path, name)
		}
		if o.Goal != "" {
			r.Goal = o.Goal
		}
		if o.Backstory != "" {
			r.Backstory = o.Backstory
		}
		roles[name] = r
	}
	return Roles{byName: roles}, nil
}

// Get returns a role by name, falling back to the researcher persona for
// unknown names.
func (r Roles) Get(name string) Role {
	if role, ok := r.byName[name]; ok {
		return role
	}
	return r.byName[RoleResearcher]
}

// ForStage maps a pipeline stage to the role that executes it.
func (r Roles) ForStage(kind task.Stage) Role {
	switch kind {
	case task.StageEnrich:
		return r.Get(RoleResearcher)
	case task.StageVerify:
		return r.Get(RoleFactChecker)
	case task.StageLink:
		return r.Get(RoleWikiLinker)
	case task.StageEdit:
		return r.Get(RoleMarkdownEditor)
	case task.StageCompose:
		return r.Get(RoleContentWriter)
	case task.StageOutline, task.StageReview:
		return r.Get(RoleChiefEditor)
	}
	return r.Get(RoleResearcher)
}
