package notify

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Queue delivers notifications to next on its own goroutine so a slow sink
// never holds up the device that raised them. When the queue is full new
// notifications are dropped and counted.
type Queue struct {
	next   Deliverer
	logger *zap.Logger
	ch     chan Notification
	done   chan struct{}

	mu      sync.RWMutex // guards closed against sends on a closed channel
	closed  bool
	dropped atomic.Int64
}

// NewQueue starts a queue holding up to size pending notifications.
func NewQueue(next Deliverer, size int, logger *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		next:   next,
		logger: logger,
		ch:     make(chan Notification, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for n := range q.ch {
		q.next.Deliver(n)
	}
}

// Deliver implements Deliverer. It never blocks.
func (q *Queue) Deliver(n Notification) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- n:
	default:
		q.dropped.Add(1)
		q.logger.Warn("alert queue full, dropping notification",
			zap.String("device", n.Device),
			zap.String("kind", n.Kind))
	}
}

// Dropped returns how many notifications were dropped on a full queue.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Close stops accepting notifications and waits for the pending ones to be
// delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	<-q.done
}
