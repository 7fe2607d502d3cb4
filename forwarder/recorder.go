package forwarder

import (
	"context"

	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/model"
)

// SubmissionStore durably records a submission.
type SubmissionStore interface {
	InsertSubmission(ctx context.Context, sub *model.Submission) error
}

// Recorder stores submissions and, once they are stored, queues them for
// forwarding. A nil queue only stores.
type Recorder struct {
	store SubmissionStore
	queue *Queue
}

func NewRecorder(store SubmissionStore, queue *Queue) *Recorder {
	return &Recorder{store: store, queue: queue}
}

func (r *Recorder) RecordSubmission(ctx context.Context, sub *model.Submission) error {
	err := r.store.InsertSubmission(ctx, sub)
	if err != nil {
		return err
	}

	if r.queue != nil && !r.queue.Enqueue(*sub) {
		log.Warnf("forwarder.enqueue: queue full, submission %d will not be forwarded", sub.ID)
	}
	return nil
}
