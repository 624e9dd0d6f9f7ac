package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/me/gowe/internal/monitor"
	"github.com/me/gowe/pkg/model"
)

// StartMonitors replaces the tick-driven dispatch/poll phases (2, 2.5, 3)
// with one monitor.Monitor per registered executor type, each running its
// own submitter/poller goroutine pair. advancePending, finalizeSubmissions,
// and markRetries (phases 1, 4, 5) keep running on a feeder ticker, since
// they operate on store-wide state rather than a single in-flight task.
// Tick itself is untouched, so the synchronous path used by the CLI and
// integration tests is unaffected by calling StartMonitors.
func (l *Loop) StartMonitors(ctx context.Context, onEvent TaskEventFunc) error {
	if l.monitors != nil {
		return fmt.Errorf("monitors already started")
	}

	l.session = newLoopSession(l.logger, onEvent)
	l.monitors = make(map[model.ExecutorType]*monitor.Monitor)

	types := l.registry.Types()
	for _, t := range types {
		capacity, unbounded, err := l.queueSize(t)
		if err != nil {
			return err
		}

		cfg := monitor.Config{
			Name:         string(t),
			Capacity:     capacity,
			Unbounded:    unbounded,
			PollInterval: l.config.PollInterval,
		}
		m := monitor.New(string(t), cfg, l.session, l.logger)
		l.monitors[t] = m
		m.Start(ctx)

		l.logger.Info("monitor capacity", "executor_type", t, "capacity", capacity, "unbounded", unbounded)
	}

	feederCtx, cancel := context.WithCancel(ctx)
	l.feederCancel = cancel
	l.feederDone = make(chan struct{})
	go l.runFeeder(feederCtx)

	l.logger.Info("monitor engine started", "executor_types", types)
	return nil
}

// queueSize resolves the monitor capacity for t: an explicit override in
// l.config.Capacities if present, otherwise the registered executor's own
// MaxConcurrency(). A non-positive result from either source is treated
// as unbounded, matching the source's 0-is-no-limit sentinel.
func (l *Loop) queueSize(t model.ExecutorType) (capacity int, unbounded bool, err error) {
	if override, ok := l.config.Capacities[t]; ok {
		if override <= 0 {
			return 0, true, nil
		}
		return override, false, nil
	}

	exec, err := l.registry.Get(t)
	if err != nil {
		return 0, false, fmt.Errorf("queue size for %s: %w", t, err)
	}

	n := exec.MaxConcurrency()
	if n <= 0 {
		return 0, true, nil
	}
	return n, false, nil
}

// StopMonitors shuts down the feeder and every monitor, and blocks until
// each has arrived at the shared barrier.
func (l *Loop) StopMonitors() error {
	if l.monitors == nil {
		return nil
	}

	l.session.shutdown()

	if l.feederCancel != nil {
		l.feederCancel()
		<-l.feederDone
	}

	for _, m := range l.monitors {
		m.Wait()
	}
	l.session.barrier.Wait()

	l.monitors = nil
	l.session = nil
	l.logger.Info("monitor engine stopped")
	return nil
}

// runFeeder periodically advances PENDING tasks, hands newly-SCHEDULED and
// RETRYING tasks to their monitor, and finalizes affected submissions.
func (l *Loop) runFeeder(ctx context.Context) {
	defer close(l.feederDone)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.feedOnce(ctx); err != nil {
				l.logger.Error("feeder pass error", "error", err)
			}
		}
	}
}

func (l *Loop) feedOnce(ctx context.Context) error {
	affected := make(map[string]bool)

	if err := l.advancePending(ctx, affected); err != nil {
		return fmt.Errorf("advance pending: %w", err)
	}
	if err := l.dispatchToMonitors(ctx, affected); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := l.finalizeSubmissions(ctx, affected); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if err := l.markRetries(ctx, affected); err != nil {
		return fmt.Errorf("mark retries: %w", err)
	}
	return nil
}

// CancelTask tells the monitor for task's executor type to stop tracking
// it, killing the backend job if one was already submitted. It is a no-op
// returning false if the monitor engine isn't running or holds no handler
// for this task (e.g. it already completed, or was dispatched through the
// synchronous Tick path instead).
func (l *Loop) CancelTask(ctx context.Context, task *model.Task) bool {
	if l.monitors == nil {
		return false
	}
	m, ok := l.monitors[task.ExecutorType]
	if !ok {
		return false
	}
	return m.CancelByID(ctx, task.ID)
}

// dispatchToMonitors hands every SCHEDULED and RETRYING task to the monitor
// registered for its executor type, replacing Loop.dispatchScheduled and
// Loop.resubmitRetrying's synchronous exec.Submit calls with an async
// handoff: the monitor's own submitter goroutine calls Submit once capacity
// allows.
//
// A task can sit in the monitor's pending queue for several feeder ticks
// before a slot opens, so it must leave SCHEDULED/RETRYING here, at
// dispatch time, rather than waiting for the eventual Submit call —
// otherwise the next tick's GetTasksByState would hand the same task to a
// second handler and double-submit it.
func (l *Loop) dispatchToMonitors(ctx context.Context, affected map[string]bool) error {
	scheduled, err := l.store.GetTasksByState(ctx, model.TaskStateScheduled)
	if err != nil {
		return err
	}

	retrying, err := l.store.GetTasksByState(ctx, model.TaskStateRetrying)
	if err != nil {
		return err
	}
	for _, task := range retrying {
		task.RetryCount++
		task.ExitCode = nil
		task.Stdout = ""
		task.Stderr = ""
		task.CompletedAt = nil
		task.StartedAt = nil
		l.logger.Info("retrying task", "task_id", task.ID, "attempt", task.RetryCount)
	}

	tasks := append(scheduled, retrying...)
	for _, task := range tasks {
		m, ok := l.monitors[task.ExecutorType]
		if !ok {
			l.logger.Error("no monitor for executor type", "task_id", task.ID, "executor_type", task.ExecutorType)
			continue
		}

		task.State = model.TaskStateQueued
		if err := l.store.UpdateTask(ctx, task); err != nil {
			l.logger.Error("claim task for dispatch", "task_id", task.ID, "error", err)
			continue
		}

		handler, err := newTaskHandlerAdapter(ctx, task, l.store, l.registry, l.logger)
		if err != nil {
			l.logger.Error("build task handler", "task_id", task.ID, "error", err)
			continue
		}

		m.Schedule(handler)
		affected[task.SubmissionID] = true
	}

	return nil
}
