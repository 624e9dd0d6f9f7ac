package monitor

import "context"

// TaskHandler is the lifecycle contract for one unit of work dispatched to a
// backend. Implementations are backend-specific (local process, container,
// cluster job, remote worker pull) and are supplied by the caller; the
// monitor never constructs one itself.
type TaskHandler interface {
	// ID identifies the handler for logging and diagnostics.
	ID() string

	// Submit dispatches the handler to its backend. If Submit returns an
	// error the handler must not be inserted into the running queue.
	Submit(ctx context.Context) error

	// CheckIfRunning reports whether the handler has transitioned to the
	// running state. It is edge-triggered: once it has returned true,
	// implementations are expected to keep returning true on subsequent
	// calls rather than flapping.
	CheckIfRunning(ctx context.Context) (bool, error)

	// CheckIfCompleted reports whether the handler has reached a terminal
	// state, success or failure. Implementations may consult state
	// populated by a prior Batch call.
	CheckIfCompleted(ctx context.Context) (bool, error)

	// Kill makes a best-effort attempt to terminate the backend work. It
	// may itself fail; callers swallow the error during cleanup.
	Kill(ctx context.Context) error
}

// BatchAware is implemented by handlers that can coalesce their status
// check into a shared per-cycle probe. Handlers that don't implement it
// are checked individually.
type BatchAware interface {
	// AsBatchHandler narrows the handler to its batch-capable form, or
	// reports false if this particular instance declines batching this
	// cycle.
	AsBatchHandler() (BatchHandler, bool)
}

// BatchHandler is a TaskHandler that can share a BatchContext with other
// handlers of the same concrete type during a single poll cycle.
type BatchHandler interface {
	TaskHandler

	// Batch installs the shared collector to use during the next
	// CheckIfCompleted call. It is called once per poll cycle, before any
	// status probing for that cycle begins.
	Batch(ctx *BatchContext)
}

// GridKillable is implemented by handlers whose Kill call can be coalesced
// with other handlers of the same backend during cleanup (e.g. a single
// batched cancel-job RPC instead of one call per task).
type GridKillable interface {
	AsGridHandler() (GridHandler, bool)
}

// GridHandler is a TaskHandler that can share a BatchCleanup aggregator
// during session teardown.
type GridHandler interface {
	TaskHandler

	// AttachCleanup installs the shared aggregator to use during Kill.
	AttachCleanup(c *BatchCleanup)
}

// BatchContext aggregates status probes for handlers of one concrete type
// during a single poll cycle. It is created lazily by the poller the first
// time it sees a batch-aware handler of a given type, shared by every
// handler of that type for the rest of the cycle, and discarded afterward.
type BatchContext struct {
	typeName string

	// handlers is the set of handlers that attached to this cycle's
	// context, in the order they were seen.
	handlers []BatchHandler
}

func newBatchContext(typeName string) *BatchContext {
	return &BatchContext{typeName: typeName}
}

// Add registers a handler as a participant in this cycle's batch. Backend
// implementations call this from Batch to record themselves, then read
// Participants back out when one of them is asked to perform the shared
// probe.
func (c *BatchContext) Add(h BatchHandler) {
	c.handlers = append(c.handlers, h)
}

// Participants returns every handler that joined this cycle's batch.
func (c *BatchContext) Participants() []BatchHandler {
	return c.handlers
}

// BatchCleanup aggregates best-effort kill calls across grid-backed
// handlers during session teardown, so a backend that supports a bulk
// cancel can issue one call instead of one per task.
type BatchCleanup struct {
	pending []GridHandler
}

// Add registers a handler for coalesced cleanup.
func (c *BatchCleanup) Add(h GridHandler) {
	c.pending = append(c.pending, h)
}

// Pending returns every handler registered for coalesced cleanup.
func (c *BatchCleanup) Pending() []GridHandler {
	return c.pending
}

// Kill flushes the aggregator. The default implementation has no bulk
// primitive of its own; it exists as the hook backends with a genuine bulk
// cancel API (BV-BRC's kill_task accepts one ID at a time today, but a
// future batch endpoint would attach here) can override by wrapping
// BatchCleanup in their own type. Kept as a no-op so cleanup always has
// something safe to call.
func (c *BatchCleanup) Kill(ctx context.Context) error {
	return nil
}
