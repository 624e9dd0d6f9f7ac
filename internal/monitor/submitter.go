package monitor

import "context"

// runSubmitter drains the pending queue into the running queue while
// capacity allows, blocking on taskAvail when there is no work and on
// slotAvail when there is work but no room. It returns once the context
// is cancelled or the session is aborted.
func runSubmitter(ctx context.Context, m *Monitor) {
	for {
		if ctx.Err() != nil || m.sess.IsAborted() {
			return
		}

		submitted := drainPending(ctx, m)

		if ctx.Err() != nil || m.sess.IsAborted() {
			return
		}

		if submitted == 0 {
			m.pendingMu.Lock()
			m.dumper.dumpPending(m.name, m.pending.snapshot())
			// Re-check under lock: a Schedule call, an Evict that freed a
			// slot, or an abort between drainPending returning and taking
			// the lock here must not be missed.
			switch {
			case m.sess.IsAborted():
			case m.pending.len() == 0:
				waitOnEither(ctx, m, m.taskAvail)
			case m.sess.Cancelled() || !m.canSubmit(m.pending.items[0], m.running.len()):
				waitOnEither(ctx, m, m.slotAvail)
			}
			m.pendingMu.Unlock()
		}
	}
}

// drainPending performs one pass over the pending queue in FIFO order,
// submitting every handler whose canSubmit check passes, until it finds
// one that doesn't (in which case it and every successor are left in
// place, preserving FIFO), or the session goes aborted/cancelled
// mid-drain. It returns the number of handlers submitted this pass.
func drainPending(ctx context.Context, m *Monitor) int {
	submitted := 0

	m.pendingMu.Lock()
	for m.pending.len() == 0 && ctx.Err() == nil && !m.sess.IsAborted() {
		waitOnEither(ctx, m, m.taskAvail)
	}

	for {
		if ctx.Err() != nil {
			m.pendingMu.Unlock()
			return submitted
		}

		var next TaskHandler
		for i := 0; i < m.pending.len(); i++ {
			h := m.pending.items[i]
			if !m.canSubmit(h, m.running.len()) {
				// Leave h and every successor in place; stop draining.
				m.pendingMu.Unlock()
				return submitted
			}
			if m.sess.IsAborted() || m.sess.Cancelled() {
				// Session going down: leave the handler at the break
				// point in place (intentional — resume after un-abort).
				m.pendingMu.Unlock()
				return submitted
			}
			next = h
			m.pending.removeAt(i)
			break
		}
		if next == nil {
			// Nothing left to drain this pass.
			m.pendingMu.Unlock()
			return submitted
		}
		m.pendingMu.Unlock()

		if submitOne(ctx, m, next) {
			submitted++
		}

		m.pendingMu.Lock()
	}
}

// submitOne dispatches h to its backend. On success it is appended to the
// running queue and the session is notified. On failure the fault policy
// decides whether the session aborts; either way h never enters the
// running queue and the session is notified of a failed completion.
func submitOne(ctx context.Context, m *Monitor, h TaskHandler) bool {
	err := h.Submit(ctx)
	if err != nil {
		if fault := resumeOrDie(ctx, h, err, m.policy); fault != nil {
			m.sess.Fault(*fault)
		}
		m.sess.NotifyTaskComplete(h.ID(), false)
		return false
	}

	m.pendingMu.Lock()
	m.running.push(h)
	m.pendingMu.Unlock()

	m.sess.NotifyTaskSubmit(h.ID())
	return true
}

// waitOnEither waits on cond until signaled. Context cancellation is
// delivered by the Monitor's single ctxWatcher goroutine (started once in
// Start), which broadcasts every predicate when ctx.Done fires, so no
// per-wait goroutine is needed here. Caller holds m.pendingMu.
func waitOnEither(ctx context.Context, m *Monitor, cond interface{ Wait() }) {
	if ctx.Err() != nil {
		return
	}
	cond.Wait()
}
