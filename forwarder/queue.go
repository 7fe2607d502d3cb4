package forwarder

import (
	"context"
	"sync"
	"time"

	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/model"
)

// Sender delivers one submission.
type Sender interface {
	Forward(ctx context.Context, sub model.Submission) error
}

// Queue hands submissions to a single background worker. Enqueue never
// blocks.
type Queue struct {
	sender  Sender
	timeout time.Duration
	ch      chan model.Submission

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewQueue(sender Sender, size int, timeout time.Duration) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		sender:  sender,
		timeout: timeout,
		ch:      make(chan model.Submission, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules sub for delivery, reporting false if it was dropped
// because the queue is full or closed.
func (q *Queue) Enqueue(sub model.Submission) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.ch <- sub:
		return true
	default:
		return false
	}
}

// Close stops accepting submissions and waits until the queued ones have
// been attempted, or ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for sub := range q.ch {
		q.deliver(sub)
	}
}

func (q *Queue) deliver(sub model.Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	err := q.sender.Forward(ctx, sub)
	if err != nil {
		log.WithFields(log.Fields{
			"form_id":       sub.FormID,
			"submission_id": sub.ID,
		}).Errorf("forwarder.deliver: %v", err)
		return
	}
	log.Debugf("forwarder.deliver: submission %d forwarded", sub.ID)
}
