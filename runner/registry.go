package runner

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/log"
)

// Registry holds the live sessions of every respondent. Sessions are never
// persisted; one that sits idle longer than the TTL is forgotten.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*slot
	ttl      time.Duration
	now      func() time.Time
}

type slot struct {
	mu      sync.Mutex
	session *Session
	touched time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*slot),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Add registers s and returns its id.
func (r *Registry) Add(s *Session) string {
	id := uuid.Must(uuid.NewV4()).String()

	r.mu.Lock()
	r.sessions[id] = &slot{session: s, touched: r.now()}
	r.mu.Unlock()

	return id
}

// With runs fn on the session named id under that session's lock. Finished
// sessions stay reachable so that a repeated request can read the outcome.
func (r *Registry) With(id string, fn func(*Session) error) error {
	r.mu.Lock()
	sl, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return errs.NotFoundf("runner.registry", "session %s not found", id)
	}

	sl.mu.Lock()
	if r.now().Sub(sl.touched) > r.ttl {
		sl.mu.Unlock()
		r.remove(id)
		return errs.NotFoundf("runner.registry", "session %s expired", id)
	}
	defer sl.mu.Unlock()
	sl.touched = r.now()
	return fn(sl.session)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Sweep forgets every session idle for longer than the TTL. A session busy
// in With is not idle.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, sl := range r.sessions {
		if !sl.mu.TryLock() {
			continue
		}
		idle := sl.touched.Before(cutoff)
		sl.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Janitor sweeps expired sessions every interval until ctx is done.
func (r *Registry) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debugf("runner.registry: forgot %d idle sessions", n)
			}
		}
	}
}
