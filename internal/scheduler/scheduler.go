package scheduler

import (
	"context"

	"github.com/me/gowe/pkg/model"
)

// Scheduler evaluates task readiness, dispatches tasks to executors,
// and manages the submission lifecycle.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration. Used for testing.
	Tick(ctx context.Context) error

	// CancelTask stops tracking task in the monitor engine, killing its
	// backend job if one is already in flight. Reports false if the
	// engine holds no handler for it (not yet dispatched, already
	// terminal, or the monitor engine isn't running).
	CancelTask(ctx context.Context, task *model.Task) bool
}
