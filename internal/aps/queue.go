package aps

import "context"

// SubmitQueue is a bounded-concurrency FIFO executor throttling driver
// submissions (§4.2). At most `concurrent` work items are active at once;
// excess submissions block until a slot frees up, preserving submission
// order for callers that enqueue serially.
type SubmitQueue struct {
	slots chan struct{}
}

// NewSubmitQueue creates a queue allowing up to `concurrent` simultaneous
// in-flight submissions. concurrent <= 0 is treated as 1.
func NewSubmitQueue(concurrent int) *SubmitQueue {
	if concurrent <= 0 {
		concurrent = 1
	}
	return &SubmitQueue{slots: make(chan struct{}, concurrent)}
}

// Submit runs fn once a concurrency slot is available, releasing the slot
// when fn returns. Blocks until either a slot is acquired or ctx is done.
func (q *SubmitQueue) Submit(ctx context.Context, fn func() error) error {
	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.slots }()
	return fn()
}
