package handler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gozy-app/gozy/internal/domain/checkout"
)

// entry serialises access to a session, which is single-owner.
type entry struct {
	mu      sync.Mutex
	id      string
	userID  string
	session *checkout.Session
	touched time.Time
	// closed is set under mu once the session is paid.
	closed bool
}

type registry struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]*entry
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]*entry),
	}
}

func (r *registry) add(userID string, s *checkout.Session) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	e := &entry{
		id:      uuid.NewString(),
		userID:  userID,
		session: s,
		touched: r.now(),
	}
	r.items[e.id] = e
	return e
}

// acquire returns the locked entry. The caller must unlock e.mu.
func (r *registry) acquire(id string) (*entry, bool) {
	r.mu.Lock()
	e, ok := r.items[id]
	if ok && r.now().Sub(e.touched) > r.ttl {
		delete(r.items, id)
		ok = false
	}
	if ok {
		e.touched = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, false
	}
	return e, true
}

// close removes a locked entry for good.
func (r *registry) close(e *entry) {
	e.closed = true
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, e.id)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *registry) sweepLocked() {
	now := r.now()
	for id, e := range r.items {
		if now.Sub(e.touched) > r.ttl {
			delete(r.items, id)
		}
	}
}
