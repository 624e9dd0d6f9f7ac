package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/gowe/internal/executor"
	"github.com/me/gowe/internal/store"
	"github.com/me/gowe/pkg/model"
)

// taskHandlerAdapter wraps a single scheduled task, its owning submission and
// workflow, and the executor it runs on so that it satisfies
// monitor.TaskHandler. It reuses the same input-resolution and persistence
// steps as Loop.submitTask/pollInFlight so the monitor-driven path and the
// tick-driven path agree on task semantics.
type taskHandlerAdapter struct {
	task        *model.Task
	step        *model.Step
	subInputs   map[string]interface{}
	tasksByStep map[string]*model.Task

	exec   executor.Executor
	store  store.Store
	logger *slog.Logger

	mu            sync.Mutex
	startNotified bool
}

// newTaskHandlerAdapter resolves the submission, workflow, step, and sibling
// tasks needed to dispatch task, the same lookups Loop.submitTask performs.
func newTaskHandlerAdapter(ctx context.Context, task *model.Task, st store.Store, reg *executor.Registry, logger *slog.Logger) (*taskHandlerAdapter, error) {
	sub, err := st.GetSubmission(ctx, task.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", task.SubmissionID, err)
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s not found", task.SubmissionID)
	}

	wf, err := st.GetWorkflow(ctx, sub.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", sub.WorkflowID, err)
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow %s not found", sub.WorkflowID)
	}

	step := findStep(wf, task.StepID)
	if step == nil {
		return nil, fmt.Errorf("step %s not found in workflow %s", task.StepID, wf.ID)
	}

	allTasks, err := st.ListTasksBySubmission(ctx, task.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	exec, err := reg.Get(task.ExecutorType)
	if err != nil {
		return nil, fmt.Errorf("get executor for task %s: %w", task.ID, err)
	}

	return &taskHandlerAdapter{
		task:        task,
		step:        step,
		subInputs:   sub.Inputs,
		tasksByStep: BuildTasksByStepID(allTasks),
		exec:        exec,
		store:       st,
		logger:      logger.With("task_id", task.ID, "step_id", task.StepID),
	}, nil
}

func (a *taskHandlerAdapter) ID() string { return a.task.ID }

// Submit resolves the task's inputs and hands it to the executor, mirroring
// Loop.submitTask's input-resolution and submit-error bookkeeping.
func (a *taskHandlerAdapter) Submit(ctx context.Context) error {
	if err := ResolveTaskInputs(a.task, a.step, a.subInputs, a.tasksByStep); err != nil {
		a.markFailed(ctx, err)
		return fmt.Errorf("resolve inputs for task %s: %w", a.task.ID, err)
	}

	now := time.Now().UTC()
	a.task.StartedAt = &now
	externalID, err := a.exec.Submit(ctx, a.task)
	a.task.ExternalID = externalID
	if err != nil {
		a.task.StartedAt = nil
		a.markFailed(ctx, err)
		return err
	}

	a.task.State = model.TaskStateQueued
	if err := a.store.UpdateTask(ctx, a.task); err != nil {
		a.logger.Error("persist queued task", "error", err)
	}
	return nil
}

// CheckIfRunning reports true the first time the executor reports the task
// has entered the running state. Once reported, it answers true from the
// cached flag without issuing another status call on the next poll cycle's
// CheckIfCompleted call, matching the one-state-transition-per-poll shape of
// Loop.pollInFlight.
func (a *taskHandlerAdapter) CheckIfRunning(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.startNotified {
		return true, nil
	}

	state, err := a.exec.Status(ctx, a.task)
	if err != nil {
		return false, err
	}

	if state != a.task.State {
		a.task.State = state
		if state == model.TaskStateRunning && a.task.StartedAt == nil {
			now := time.Now().UTC()
			a.task.StartedAt = &now
		}
		if err := a.store.UpdateTask(ctx, a.task); err != nil {
			a.logger.Error("persist status", "error", err)
		}
	}

	if state == model.TaskStateRunning {
		a.startNotified = true
		return true, nil
	}
	return false, nil
}

// CheckIfCompleted reports true once the executor reports a terminal state,
// fetching logs exactly as Loop.pollInFlight does. Store failures are
// logged, not propagated: the task is terminal regardless of whether the
// persisted copy could be refreshed, and the poller must still evict it.
func (a *taskHandlerAdapter) CheckIfCompleted(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, err := a.exec.Status(ctx, a.task)
	if err != nil {
		return false, err
	}
	if !state.IsTerminal() {
		if state != a.task.State {
			a.task.State = state
			if err := a.store.UpdateTask(ctx, a.task); err != nil {
				a.logger.Error("persist status", "error", err)
			}
		}
		return false, nil
	}

	a.task.State = state
	now := time.Now().UTC()
	a.task.CompletedAt = &now
	stdout, stderr, _ := a.exec.Logs(ctx, a.task)
	a.task.Stdout = stdout
	a.task.Stderr = stderr
	if err := a.store.UpdateTask(ctx, a.task); err != nil {
		a.logger.Error("persist completed task", "error", err)
	}
	return true, nil
}

// Kill cancels the task at its executor and marks it failed. Cancel errors
// are returned to the caller, which logs and swallows them: cleanup never
// blocks monitor shutdown on a misbehaving backend.
func (a *taskHandlerAdapter) Kill(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.exec.Cancel(ctx, a.task)
	a.markFailedLocked(ctx, fmt.Errorf("killed during cleanup: %w", errOrCancelled(err)))
	return err
}

func errOrCancelled(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("cleanup kill")
}

func (a *taskHandlerAdapter) markFailed(ctx context.Context, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markFailedLocked(ctx, cause)
}

func (a *taskHandlerAdapter) markFailedLocked(ctx context.Context, cause error) {
	a.task.State = model.TaskStateFailed
	a.task.Stderr = cause.Error()
	now := time.Now().UTC()
	a.task.CompletedAt = &now
	if err := a.store.UpdateTask(ctx, a.task); err != nil {
		a.logger.Error("persist failed task", "error", err)
	}
}
