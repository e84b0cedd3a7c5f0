package dispatch

import (
	"context"

	"github.com/dotcypress/fxcore"
	"golang.org/x/sync/semaphore"
)

// renderQueue is the bounded FIFO coupling the I²C handler to the render
// task. A weighted semaphore of weight `capacity` models the "at most N
// outstanding" ceiling: enqueue is TryAcquire, never a blocking send, so
// a full queue is an observable, non-blocking drop rather than
// back-pressure on the I²C handler.
type renderQueue struct {
	sem *semaphore.Weighted
	ch  chan fxcore.RenderRequest
}

func newRenderQueue(capacity int) *renderQueue {
	return &renderQueue{
		sem: semaphore.NewWeighted(int64(capacity)),
		ch:  make(chan fxcore.RenderRequest, capacity),
	}
}

// tryEnqueue appends req if the queue has room, reporting whether it was
// accepted. A false return means QueueOverflow: the caller logs and drops.
func (q *renderQueue) tryEnqueue(req fxcore.RenderRequest) bool {
	if !q.sem.TryAcquire(1) {
		return false
	}
	q.ch <- req
	return true
}

// dequeue blocks for the next request until ctx is cancelled.
func (q *renderQueue) dequeue(ctx context.Context) (fxcore.RenderRequest, bool) {
	select {
	case req := <-q.ch:
		q.sem.Release(1)
		return req, true
	case <-ctx.Done():
		return fxcore.RenderRequest{}, false
	}
}
