// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunState identifies the outcome class of an enhancement run, ordered
// by degradation: clean merge, merge with guard-restored sections,
// document rebuilt from individual stage outputs, untouched original
// returned because recovery fell short.
// Per prd004-recovery R1.1-R1.3.
type RunState string

const (
	// RunRunning is the in-flight state while stages execute.
	RunRunning RunState = "running"

	// RunCompleted means the merged document passed every check without
	// repair.
	RunCompleted RunState = "completed"

	// RunPartiallyRecovered means the merged document was kept after the
	// guard restored at least one section body from the original.
	RunPartiallyRecovered RunState = "partially_recovered"

	// RunRecovered means the merge failed or came up short and the
	// document was rebuilt from individual completed stage outputs.
	RunRecovered RunState = "recovered"

	// RunRejected means recovered content fell below the keep ratio and
	// the untouched original document was returned instead.
	RunRejected RunState = "rejected_fallback_to_original"
)

// RunReport summarizes one enhancement run for callers and the memory
// store. It is advisory: the run itself never surfaces pipeline errors.
type RunReport struct {
	// RunID identifies the run (UUID).
	RunID string `json:"run_id" yaml:"run_id"`

	// State is the final run state.
	State RunState `json:"state" yaml:"state"`

	// Sections is the number of sections parsed from the input.
	Sections int `json:"sections" yaml:"sections"`

	// Enriched counts sections whose full stage chain completed.
	Enriched int `json:"enriched" yaml:"enriched"`

	// Failed counts stages that did not complete: execution errors,
	// poisoned dependents, cancellation.
	Failed int `json:"failed" yaml:"failed"`

	// Repaired lists section ids whose content the guard restored.
	Repaired []string `json:"repaired,omitempty" yaml:"repaired,omitempty"`

	// InputChars and OutputChars are the document lengths before and after.
	InputChars  int `json:"input_chars" yaml:"input_chars"`
	OutputChars int `json:"output_chars" yaml:"output_chars"`

	// Advisory carries a human-readable note for degraded outcomes.
	Advisory string `json:"advisory,omitempty" yaml:"advisory,omitempty"`

	// Started and Finished bound the run wall-clock time.
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
}

// HasFailures reports whether any stage execution failed.
func (r RunReport) HasFailures() bool {
	return r.Failed > 0
}

// Degraded reports whether the run ended anywhere short of a clean
// completion.
func (r RunReport) Degraded() bool {
	return r.State != RunCompleted
}
