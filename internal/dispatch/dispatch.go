// Package dispatch runs application callbacks one at a time on a single
// goroutine, in the order they were submitted.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"hyperimswitch/internal/workerutil"
)

const defaultCapacity = 256

// Queue is a serial dispatcher. Hotkey triggers and control commands share
// it so application handlers never run concurrently.
type Queue struct {
	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	dropped   atomic.Int64
}

// New starts a queue holding up to capacity pending callbacks. A
// non-positive capacity selects the default.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:  make(chan func(), capacity),
		ctx:    ctx,
		cancel: cancel,
	}
	workerutil.RunWithPanicRecovery(ctx, "ui-dispatcher", &q.wg, q.loop, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return ctx.Err() != nil },
	})
	return q
}

// Dispatch queues fn without blocking. It returns false when the queue is
// closed or full.
func (q *Queue) Dispatch(fn func()) bool {
	if fn == nil || q.ctx.Err() != nil {
		return false
	}
	select {
	case q.tasks <- fn:
		return true
	default:
		q.dropped.Add(1)
		slog.Warn("[DEBUG-DISPATCH] queue full, dropping callback", "capacity", cap(q.tasks))
		return false
	}
}

// Dropped counts callbacks rejected because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops the worker after the callback in flight returns. Pending
// callbacks are discarded.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
		if n := len(q.tasks); n > 0 {
			slog.Info("[DEBUG-DISPATCH] discarded pending callbacks on close", "count", n)
		}
	})
}

func (q *Queue) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-q.tasks:
			workerutil.RecoverTask("ui-dispatch", fn)
		}
	}
}
