package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// throttledDumper rate-limits a diagnostic emit to at most once per
// interval. It is observability, not control: callers invoke tryDump on
// every iteration and it decides whether enough time has passed to
// actually log.
type throttledDumper struct {
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last time.Time
}

func newThrottledDumper(logger *slog.Logger, interval time.Duration) *throttledDumper {
	return &throttledDumper{logger: logger, interval: interval}
}

// tryDump calls emit if at least interval has elapsed since the last
// successful dump, and no-ops otherwise.
func (d *throttledDumper) tryDump(emit func()) {
	d.mu.Lock()
	due := time.Since(d.last) >= d.interval
	if due {
		d.last = time.Now()
	}
	d.mu.Unlock()

	if due {
		emit()
	}
}

// dumpPending logs a throttled snapshot of the pending queue.
func (d *throttledDumper) dumpPending(name string, items []TaskHandler) {
	d.tryDump(func() {
		d.logger.Info("pending queue snapshot",
			"monitor", name,
			"count", humanize.Comma(int64(len(items))),
		)
	})
}

// dumpRunning logs a throttled snapshot of the running queue.
func (d *throttledDumper) dumpRunning(name string, items []TaskHandler) {
	d.tryDump(func() {
		ids := make([]string, 0, len(items))
		for _, h := range items {
			ids = append(ids, h.ID())
		}
		d.logger.Info("running queue snapshot",
			"monitor", name,
			"count", humanize.Comma(int64(len(items))),
			"handlers", ids,
		)
	})
}
