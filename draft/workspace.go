package draft

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/log"
)

// Workspace keeps the open drafts of every owner in memory. A draft is only
// visible to the owner that opened it; drafts of other owners, unknown
// tokens and expired drafts all look the same: not found.
type Workspace struct {
	mu     sync.Mutex
	drafts map[string]*entry
	now    func() time.Time
}

type entry struct {
	mu      sync.Mutex
	owner   string
	draft   *Draft
	touched time.Time
}

func NewWorkspace() *Workspace {
	return &Workspace{
		drafts: make(map[string]*entry),
		now:    time.Now,
	}
}

// Open registers d for owner and returns the token that names it.
func (w *Workspace) Open(owner string, d *Draft) string {
	token := uuid.Must(uuid.NewV4()).String()

	w.mu.Lock()
	w.drafts[token] = &entry{owner: owner, draft: d, touched: w.now()}
	w.mu.Unlock()

	return token
}

// With runs fn on the draft named by token while holding that draft's lock,
// so the edits of one draft are applied one at a time.
func (w *Workspace) With(owner, token string, fn func(*Draft) error) error {
	w.mu.Lock()
	e, ok := w.drafts[token]
	w.mu.Unlock()
	if !ok || e.owner != owner {
		return errs.NotFoundf("draft.workspace", "draft %s not found", token)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = w.now()
	return fn(e.draft)
}

// Discard drops a draft without saving it.
func (w *Workspace) Discard(owner, token string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.drafts[token]
	if !ok || e.owner != owner {
		return errs.NotFoundf("draft.workspace", "draft %s not found", token)
	}
	delete(w.drafts, token)
	return nil
}

// Sweep drops drafts untouched for longer than maxIdle and returns how many.
func (w *Workspace) Sweep(maxIdle time.Duration) int {
	cutoff := w.now().Add(-maxIdle)

	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for token, e := range w.drafts {
		if !e.mu.TryLock() {
			continue
		}
		idle := e.touched.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(w.drafts, token)
			n++
		}
	}
	return n
}

// Janitor sweeps idle drafts every interval until ctx is done.
func (w *Workspace) Janitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.Sweep(maxIdle); n > 0 {
				log.Debugf("draft.workspace: dropped %d idle drafts", n)
			}
		}
	}
}
