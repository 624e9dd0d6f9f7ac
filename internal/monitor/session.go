package monitor

import "context"

// Fault describes a task-level failure that its processor's resume-or-die
// policy deemed unrecoverable. Passing one to Session.Fault aborts the
// session.
type Fault struct {
	HandlerID string
	Err       error
}

// Barrier is a session-level rendezvous that ensures every registered
// monitor has completed before the session terminates.
type Barrier interface {
	// Register adds name to the set of participants the barrier waits
	// for. Must be called before the monitor's threads start, so the
	// session can never observe an unregistered monitor and terminate
	// early.
	Register(name string)

	// Arrive signals that name's monitor has finished its shutdown
	// sequence.
	Arrive(name string)
}

// Session is the upward interface the monitor consumes. It is supplied
// explicitly at Monitor construction rather than reached through
// process-wide state, and its lifecycle contract is: created before any
// monitor, survives until after Barrier releases every participant.
type Session interface {
	// Barrier returns the session's shutdown rendezvous.
	Barrier() Barrier

	// OnShutdown registers a callback invoked once when the session
	// begins shutting down.
	OnShutdown(callback func())

	// IsTerminated reports whether the session has reached a normal,
	// voluntary end (e.g. no more work will ever be produced).
	IsTerminated() bool

	// IsAborted reports whether the session has been aborted due to a
	// fatal fault. Distinct from IsTerminated: a terminated session
	// drains gracefully, an aborted one tears down immediately.
	IsAborted() bool

	// Cancelled reports whether the caller has requested cooperative
	// cancellation (e.g. a user-initiated stop). The submitter checks it
	// before each promotion and promotes nothing while it is set; unlike
	// IsAborted, it does not make the submitter or poller exit, and the
	// poller does not consult it.
	Cancelled() bool

	// NotifyTaskSubmit is called once a handler has been dispatched to
	// its backend.
	NotifyTaskSubmit(handlerID string)

	// NotifyTaskStart is called on the edge-triggered transition to
	// running.
	NotifyTaskStart(handlerID string)

	// NotifyTaskComplete is called once a handler has reached a
	// terminal state, successful or not.
	NotifyTaskComplete(handlerID string, success bool)

	// Fault reports a session-fatal failure. The session is expected to
	// set its aborted flag as a result; the monitor only observes that
	// flag on the next iteration boundary, it never blocks on Fault
	// itself.
	Fault(f Fault)

	// DumpNetworkStatus lets the session log connectivity state for the
	// backends in play. The monitor itself does not call it; its own
	// throttled dumps cover only the pending and running queues.
	DumpNetworkStatus()
}

// FaultPolicy is consulted whenever a handler's Submit, CheckIfRunning, or
// CheckIfCompleted returns an error. It decides whether the failure is
// recoverable (return nil: the task is reported failed but the session
// continues) or session-fatal (return a non-nil Fault).
//
// Handlers that need custom resume-or-die behavior implement FaultHandler;
// handlers that don't get the Monitor's configured default policy.
type FaultPolicy func(ctx context.Context, handlerID string, err error) *Fault

// FaultHandler is implemented by handlers whose owning processor has its
// own resume-or-die policy, overriding the Monitor's default.
type FaultHandler interface {
	ResumeOrDie(ctx context.Context, err error) *Fault
}

// DefaultFaultPolicy treats every status-check and submission error as
// recoverable: the task is reported failed to the session but the
// session itself is not aborted. This matches scenario S4 in the design
// ("session is not aborted unless resumeOrDie returns a fault") absent a
// handler-specific policy.
func DefaultFaultPolicy(ctx context.Context, handlerID string, err error) *Fault {
	return nil
}

func resumeOrDie(ctx context.Context, h TaskHandler, err error, policy FaultPolicy) *Fault {
	if fh, ok := h.(FaultHandler); ok {
		return fh.ResumeOrDie(ctx, err)
	}
	if policy == nil {
		policy = DefaultFaultPolicy
	}
	return policy(ctx, h.ID(), err)
}
