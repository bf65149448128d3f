package crawl

import (
	"context"
	"fmt"
	"sync"

	"github.com/xrdtools/catalog/internal/directory"
)

// Queue is a bounded in-memory work queue with context-aware operations.
// It is populated once from the directory and then closed; a closed, empty
// queue is the normal end-of-run signal for workers.
type Queue struct {
	ch      chan directory.Subsystem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan directory.Subsystem, capacity),
	}
}

// Enqueue pushes a subsystem into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, sub directory.Subsystem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- sub:
		return nil
	}
}

// Dequeue pops the next subsystem. The second return value is false when
// the queue is closed and drained, or the context ended.
func (q *Queue) Dequeue(ctx context.Context) (directory.Subsystem, bool) {
	select {
	case <-ctx.Done():
		return directory.Subsystem{}, false
	case sub, ok := <-q.ch:
		return sub, ok
	}
}

// Close marks the queue complete for shutdown. Safe to call twice.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
