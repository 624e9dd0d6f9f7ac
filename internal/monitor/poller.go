package monitor

import (
	"context"
	"reflect"
	"time"
)

// Finalizer is implemented by handlers whose owning processor has a
// finalization hook to run once the handler reaches a terminal state. A
// non-nil return aborts the session, mirroring a Task fault.
type Finalizer interface {
	Finalize(ctx context.Context) *Fault
}

// Latcher is implemented by handlers that carry a completion latch (e.g.
// a caller blocked on a WaitGroup for a batch of tasks) to decrement once
// the handler is evicted.
type Latcher interface {
	CompleteLatch()
}

// runPoller repeatedly inspects every handler in the running queue on a
// fixed cadence, advancing each toward a terminal state, until the
// session terminates with both queues empty or is aborted.
func runPoller(ctx context.Context, m *Monitor) {
	// On exit, wake the submitter so it re-checks the aborted flag instead
	// of waiting on a predicate nobody will signal again.
	defer func() {
		m.pendingMu.Lock()
		m.taskAvail.Broadcast()
		m.slotAvail.Broadcast()
		m.pendingMu.Unlock()
	}()

	for {
		t0 := time.Now()

		if pollOnce(ctx, m) {
			return
		}

		if m.sess.IsTerminated() && m.runningLen() == 0 && pendingEmpty(m) {
			return
		}
		if m.sess.IsAborted() {
			return
		}

		sleepUntil(ctx, m, t0.Add(m.config.PollInterval))

		if ctx.Err() != nil || m.sess.IsAborted() {
			return
		}

		m.pendingMu.Lock()
		snapshot := m.running.snapshot()
		m.pendingMu.Unlock()
		m.dumper.dumpRunning(m.name, snapshot)
	}
}

func pendingEmpty(m *Monitor) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return m.pending.len() == 0
}

// pollOnce runs one full pass over the running queue. It returns true if
// the caller should stop the poller entirely (context cancelled).
func pollOnce(ctx context.Context, m *Monitor) bool {
	if ctx.Err() != nil {
		return true
	}

	m.pendingMu.Lock()
	snapshot := m.running.snapshot()
	m.pendingMu.Unlock()

	attachBatches(ctx, snapshot)

	for _, h := range snapshot {
		pollHandler(ctx, m, h)
	}

	return false
}

// attachBatches groups batch-aware handlers in the snapshot by concrete
// type and attaches a shared BatchContext to each group, so their
// subsequent CheckIfCompleted calls can be coalesced by the backend into
// one remote probe.
func attachBatches(ctx context.Context, snapshot []TaskHandler) {
	contexts := make(map[reflect.Type]*BatchContext)

	for _, h := range snapshot {
		ba, ok := h.(BatchAware)
		if !ok {
			continue
		}
		bh, ok := ba.AsBatchHandler()
		if !ok {
			continue
		}
		t := reflect.TypeOf(bh)
		bc, ok := contexts[t]
		if !ok {
			bc = newBatchContext(t.String())
			contexts[t] = bc
		}
		bc.Add(bh)
		bh.Batch(bc)
	}
}

// pollHandler runs the running/completed checks for one handler. Any
// error from either check is routed through the fault policy without
// aborting the poll cycle, so one sick handler never stalls the rest.
func pollHandler(ctx context.Context, m *Monitor, h TaskHandler) {
	running, err := h.CheckIfRunning(ctx)
	if err != nil {
		routeError(ctx, m, h, err)
		return
	}
	if running && m.markRunningEdge(h.ID()) {
		m.sess.NotifyTaskStart(h.ID())
	}

	completed, err := h.CheckIfCompleted(ctx)
	if err != nil {
		routeError(ctx, m, h, err)
		return
	}
	if !completed {
		return
	}

	evicted := m.Evict(h)
	if !evicted {
		return
	}

	success := true
	if f, ok := h.(Finalizer); ok {
		if fault := f.Finalize(ctx); fault != nil {
			success = false
			m.sess.Fault(*fault)
		}
	}

	if l, ok := h.(Latcher); ok {
		l.CompleteLatch()
	}

	m.sess.NotifyTaskComplete(h.ID(), success)
	m.Signal()
}

func routeError(ctx context.Context, m *Monitor, h TaskHandler, err error) {
	if fault := resumeOrDie(ctx, h, err, m.policy); fault != nil {
		m.sess.Fault(*fault)
	}
}

// sleepUntil blocks on taskComplete until deadline, or until Signal
// delivers an early wake-up. If deadline has already passed it returns
// immediately without sleeping.
func sleepUntil(ctx context.Context, m *Monitor, deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return
	}

	timer := time.AfterFunc(remaining, func() {
		m.completeMu.Lock()
		m.taskComplete.Broadcast()
		m.completeMu.Unlock()
	})
	defer timer.Stop()

	m.completeMu.Lock()
	if ctx.Err() == nil {
		m.taskComplete.Wait()
	}
	m.completeMu.Unlock()
}
