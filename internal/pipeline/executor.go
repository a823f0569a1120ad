// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/doc-engine/internal/task"
)

// backoffBase is the unit delay for stage retry backoff. Attempt n waits
// backoffBase << (n-1). Tests shorten it.
var backoffBase = time.Second

// execResult is the outcome arena of one graph execution, indexed by
// task ref. A task either completed with an output or carries an error;
// poisoned and cancelled tasks carry errors too.
type execResult struct {
	outputs   []string
	completed []bool
	errs      []error
}

// output returns a task's produced text. It reports false for tasks that
// did not complete.
func (r *execResult) output(ref task.Ref) (string, bool) {
	if !r.completed[ref] {
		return "", false
	}
	return r.outputs[ref], true
}

// failures counts tasks that did not complete.
func (r *execResult) failures() int {
	n := 0
	for _, err := range r.errs {
		if err != nil {
			n++
		}
	}
	return n
}

// runTasks executes the plan's task graph in dependency order. Chains
// run concurrently up to the configured bound; every task starts only
// after all its dependencies completed, and a failed dependency poisons
// exactly its dependents. Errors stay in the result arena; they never
// abort the run.
func (e *Enhancer) runTasks(ctx context.Context, p *plan) *execResult {
	n := len(p.tasks)
	res := &execResult{
		outputs:   make([]string, n),
		completed: make([]bool, n),
		errs:      make([]error, n),
	}

	// Closing a task's channel publishes its arena slots to dependents.
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}

	workers := int64(e.enhance.Concurrency)
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)

	var wg sync.WaitGroup
	for i, t := range p.tasks {
		wg.Add(1)
		go func(i int, t *task.Task) {
			defer wg.Done()
			defer close(done[i])

			for _, dep := range t.DependsOn {
				select {
				case <-ctx.Done():
					res.errs[i] = ctx.Err()
					return
				case <-done[dep]:
				}
			}
			for _, dep := range t.DependsOn {
				if !res.completed[dep] {
					res.errs[i] = fmt.Errorf("%s (%s): dependency %s did not complete",
						t.Kind, label(t), p.tasks[dep].Kind)
					return
				}
			}

			// The concurrency slot is taken only once the task is
			// runnable; holding it while blocked on a dependency would
			// deadlock at low bounds.
			if err := sem.Acquire(ctx, 1); err != nil {
				res.errs[i] = err
				return
			}
			defer sem.Release(1)

			instruction, err := t.Prompt.Resolve(res.output)
			if err != nil {
				res.errs[i] = err
				return
			}
			instruction += e.toolContext(ctx, t)

			e.progressf("running: %s (%s)\n", t.Kind, label(t))
			out, err := e.callWithRetry(ctx, t, instruction)
			if err != nil {
				res.errs[i] = err
				e.progressf("failed:  %s (%s): %v\n", t.Kind, label(t), err)
				return
			}
			res.outputs[i] = out
			res.completed[i] = true
		}(i, t)
	}
	wg.Wait()
	return res
}

// callWithRetry runs one stage instruction, retrying failures with
// exponential backoff. A cancelled context stops retrying immediately;
// otherwise the last attempt's error is returned.
func (e *Enhancer) callWithRetry(ctx context.Context, t *task.Task, instruction string) (string, error) {
	role := e.roles.Get(t.Role)
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffBase << (attempt - 1)):
			}
		}
		out, err := e.runner.Run(ctx, role, instruction)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt < e.maxRetries {
			e.progressf("  retrying %s (%s) after error: %v\n", t.Kind, label(t), err)
		}
	}
	return "", lastErr
}

// label identifies a task in progress output.
func label(t *task.Task) string {
	if t.SectionTitle != "" {
		return t.SectionTitle
	}
	if t.SectionID != "" {
		return t.SectionID
	}
	return "document"
}
