package scheduler

import (
	"log/slog"
	"sync"

	"github.com/me/gowe/internal/monitor"
)

// TaskEventFunc receives the three task lifecycle notifications a
// monitor.Session fans out. kind is one of "submit", "start", "complete".
type TaskEventFunc func(kind, taskID string, success bool)

// wgBarrier is a sync.WaitGroup-backed monitor.Barrier: one monitor per
// executor type registers before its threads start, and Wait blocks until
// every registered monitor has arrived at shutdown.
type wgBarrier struct {
	mu         sync.Mutex
	wg         sync.WaitGroup
	arrived    map[string]bool
	registered map[string]bool
}

func newWGBarrier() *wgBarrier {
	return &wgBarrier{
		arrived:    make(map[string]bool),
		registered: make(map[string]bool),
	}
}

func (b *wgBarrier) Register(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registered[name] {
		return
	}
	b.registered[name] = true
	b.wg.Add(1)
}

func (b *wgBarrier) Arrive(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registered[name] || b.arrived[name] {
		return
	}
	b.arrived[name] = true
	b.wg.Done()
}

// Wait blocks until every registered monitor has called Arrive. Not part of
// monitor.Barrier; Loop calls it directly during StopMonitors.
func (b *wgBarrier) Wait() {
	b.wg.Wait()
}

// loopSession implements monitor.Session on behalf of a Loop's
// monitor-driven engine. There is one loopSession shared by every
// monitor.Monitor the Loop starts (one per executor type), so the
// terminated/aborted/cancelled flags apply uniformly across backends.
type loopSession struct {
	logger  *slog.Logger
	barrier *wgBarrier
	onEvent TaskEventFunc

	mu          sync.Mutex
	terminated  bool
	aborted     bool
	cancelled   bool
	shutdownCBs []func()
	faults      []monitor.Fault
}

func newLoopSession(logger *slog.Logger, onEvent TaskEventFunc) *loopSession {
	if onEvent == nil {
		onEvent = func(string, string, bool) {}
	}
	return &loopSession{
		logger:  logger.With("component", "scheduler-session"),
		barrier: newWGBarrier(),
		onEvent: onEvent,
	}
}

func (s *loopSession) Barrier() monitor.Barrier { return s.barrier }

func (s *loopSession) OnShutdown(callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCBs = append(s.shutdownCBs, callback)
}

// shutdown runs every registered shutdown callback once, used by
// StopMonitors before waiting on the barrier.
func (s *loopSession) shutdown() {
	s.mu.Lock()
	s.terminated = true
	cbs := append([]func(){}, s.shutdownCBs...)
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (s *loopSession) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

func (s *loopSession) IsAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *loopSession) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *loopSession) cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *loopSession) NotifyTaskSubmit(handlerID string) {
	s.onEvent("submit", handlerID, true)
}

func (s *loopSession) NotifyTaskStart(handlerID string) {
	s.onEvent("start", handlerID, true)
}

func (s *loopSession) NotifyTaskComplete(handlerID string, success bool) {
	s.onEvent("complete", handlerID, success)
}

func (s *loopSession) Fault(f monitor.Fault) {
	s.logger.Error("monitor session fault, aborting", "handler_id", f.HandlerID, "error", f.Err)
	s.mu.Lock()
	s.aborted = true
	s.faults = append(s.faults, f)
	s.mu.Unlock()
}

func (s *loopSession) DumpNetworkStatus() {
	s.logger.Debug("network status dump requested")
}

func (s *loopSession) faultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.faults)
}
