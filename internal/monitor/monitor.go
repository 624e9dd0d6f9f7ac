package monitor

import (
	"context"
	"log/slog"
	"sync"
)

// CanSubmitFunc decides whether a handler may be promoted from the
// pending queue to the running queue right now. The default policy is
// |running| < capacity; callers may supply a resource-aware refinement.
type CanSubmitFunc func(h TaskHandler, runningLen int) bool

// Monitor is the facade owning both queues, the three coordination
// predicates, and the submitter/poller lifecycle for one executor class.
// One Monitor exists per executor name (local, docker, bvbrc, ...).
type Monitor struct {
	name   string
	config Config
	logger *slog.Logger
	sess   Session

	canSubmit CanSubmitFunc
	policy    FaultPolicy

	// pendingMu guards pending, taskAvail, slotAvail, runningStarted, and
	// running queue membership operations reached from Schedule/Evict.
	pendingMu      sync.Mutex
	pending        pendingQueue
	running        runningQueue
	taskAvail      *sync.Cond
	slotAvail      *sync.Cond
	runningStarted map[string]bool

	// completeMu guards taskComplete only, kept separate so a backend
	// thread signaling completion never contends with producers
	// enqueuing new work.
	completeMu     sync.Mutex
	taskComplete   *sync.Cond

	dumper *throttledDumper

	started bool
	wg      sync.WaitGroup
}

// New creates a Monitor for one executor class. sess must outlive the
// Monitor: it is created before any monitor and survives until after its
// barrier releases.
func New(name string, cfg Config, sess Session, logger *slog.Logger) *Monitor {
	cfg.Name = name
	m := &Monitor{
		name:           name,
		config:         cfg,
		logger:         logger.With("component", "monitor", "name", name),
		sess:           sess,
		canSubmit:      defaultCanSubmit(cfg),
		policy:         DefaultFaultPolicy,
		dumper:         newThrottledDumper(logger.With("component", "monitor", "name", name), cfg.dumpInterval()),
		runningStarted: make(map[string]bool),
	}
	m.taskAvail = sync.NewCond(&m.pendingMu)
	m.slotAvail = sync.NewCond(&m.pendingMu)
	m.taskComplete = sync.NewCond(&m.completeMu)
	return m
}

func defaultCanSubmit(cfg Config) CanSubmitFunc {
	return func(_ TaskHandler, runningLen int) bool {
		if cfg.Unbounded {
			return true
		}
		return runningLen < cfg.Capacity
	}
}

// SetCanSubmit overrides the default capacity-only admission policy.
func (m *Monitor) SetCanSubmit(f CanSubmitFunc) {
	m.canSubmit = f
}

// SetFaultPolicy overrides the default fault policy used for handlers
// that don't implement FaultHandler themselves.
func (m *Monitor) SetFaultPolicy(p FaultPolicy) {
	m.policy = p
}

// Start registers with the session's barrier and launches the submitter
// and poller goroutines. Barrier registration happens before the threads
// launch: otherwise the session could observe a non-registered monitor
// and terminate early.
func (m *Monitor) Start(ctx context.Context) {
	m.pendingMu.Lock()
	already := m.started
	m.started = true
	m.pendingMu.Unlock()
	if already {
		return
	}

	m.sess.Barrier().Register(m.name)
	m.sess.OnShutdown(func() { m.Cleanup(context.Background()) })

	// Wake every waiter once when ctx is cancelled, so the submitter and
	// poller never block past cancellation waiting on a predicate nobody
	// will signal again.
	go func() {
		<-ctx.Done()
		m.pendingMu.Lock()
		m.taskAvail.Broadcast()
		m.slotAvail.Broadcast()
		m.pendingMu.Unlock()

		m.completeMu.Lock()
		m.taskComplete.Broadcast()
		m.completeMu.Unlock()
	}()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		runSubmitter(ctx, m)
	}()
	go func() {
		defer m.wg.Done()
		runPoller(ctx, m)
	}()
}

// Wait blocks until both the submitter and poller goroutines have
// returned, e.g. after the session aborts or Cleanup runs.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Schedule appends handler to the pending queue and wakes the submitter,
// whether it was idle (no work) or blocked (no slot). It never blocks
// the caller.
func (m *Monitor) Schedule(h TaskHandler) {
	m.pendingMu.Lock()
	m.pending.push(h)
	m.pendingMu.Unlock()

	m.taskAvail.Signal()
	m.slotAvail.Signal()
}

// Evict removes h from the running queue. On success it signals
// slotAvail so the submitter can promote a pending handler, and reports
// true. A second call for the same handler returns false.
//
// The pending-queue lock is held for the whole operation (even though h
// lives in the running queue) so the signal is serialized with the
// submitter's predicate re-check, preventing a missed wake-up.
func (m *Monitor) Evict(h TaskHandler) bool {
	m.pendingMu.Lock()
	removed := m.running.remove(h)
	delete(m.runningStarted, h.ID())
	if removed {
		m.slotAvail.Signal()
	}
	m.pendingMu.Unlock()

	return removed
}

// CancelByID kills the handler with the given ID, wherever it sits: still
// waiting for a slot in the pending queue, or already running. It reports
// false if no handler with that ID is known to this monitor (already
// completed, or never scheduled here).
//
// A pending handler is killed directly since it was never Submit'ed; a
// running one goes through Evict first so the submitter's slotAvail
// predicate observes the freed capacity before Kill's backend call
// returns.
func (m *Monitor) CancelByID(ctx context.Context, id string) bool {
	m.pendingMu.Lock()
	h := m.pending.removeByID(id)
	if h == nil {
		h = m.running.findByID(id)
	}
	m.pendingMu.Unlock()

	if h == nil {
		return false
	}

	m.Evict(h)

	if err := h.Kill(ctx); err != nil {
		m.logger.Warn("kill failed during cancellation", "handler", h.ID(), "error", err)
	}
	m.sess.NotifyTaskComplete(h.ID(), false)
	m.Signal()
	return true
}

// markRunningEdge reports true the first time id is observed running and
// false on every subsequent call, so NotifyTaskStart fires exactly once
// per handler regardless of how many poll cycles see it still running.
func (m *Monitor) markRunningEdge(id string) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if m.runningStarted[id] {
		return false
	}
	m.runningStarted[id] = true
	return true
}

// Signal wakes the poller early, shortening its next sleep. Used by
// handlers that receive asynchronous completion notifications from their
// backend out of band.
func (m *Monitor) Signal() {
	m.completeMu.Lock()
	m.taskComplete.Signal()
	m.completeMu.Unlock()
}

// runningLen returns the current size of the running queue under lock.
func (m *Monitor) runningLen() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return m.running.len()
}

// Cleanup drains the running queue, best-effort killing every handler
// still in flight. Invoked once on session shutdown (directly, or via the
// OnShutdown callback registered in Start).
func (m *Monitor) Cleanup(ctx context.Context) {
	cleanup := &BatchCleanup{}

	for {
		m.pendingMu.Lock()
		h := m.running.pop()
		if h != nil {
			delete(m.runningStarted, h.ID())
		}
		m.pendingMu.Unlock()
		if h == nil {
			break
		}

		killable := h
		if gk, ok := h.(GridKillable); ok {
			if gh, ok := gk.AsGridHandler(); ok {
				gh.AttachCleanup(cleanup)
				killable = gh
			}
		}

		// Kill calls may block on backend network I/O; never hold the
		// pending-queue lock while making them.
		if err := killable.Kill(ctx); err != nil {
			m.logger.Warn("kill failed during cleanup", "handler", h.ID(), "error", err)
		}

		m.sess.NotifyTaskComplete(h.ID(), false)
	}

	if err := cleanup.Kill(ctx); err != nil {
		m.logger.Warn("batch cleanup kill failed", "error", err)
	}

	m.completeMu.Lock()
	m.taskComplete.Broadcast()
	m.completeMu.Unlock()

	m.sess.Barrier().Arrive(m.name)
}
