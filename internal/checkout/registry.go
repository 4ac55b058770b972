package checkout

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mudichurmart/storefront/internal/cart"
)

// Session pairs a shopper's cart with the orchestrator checking it out. Both
// must be the same instances across requests, so sessions live in a Registry.
type Session struct {
	ID       string
	Cart     *cart.Ledger
	Checkout *Orchestrator
}

// SessionFactory builds the session for an id on first use.
type SessionFactory func(ctx context.Context, id string) (*Session, error)

// Limits bound the sessions a Registry keeps in memory. A dropped session
// keeps its cart in storage and is rebuilt on the next request.
type Limits struct {
	// IdleTTL drops sessions not seen for this long.
	IdleTTL time.Duration
	// MaxSessions caps the registry. At the cap the least recently used
	// session without an open checkout is dropped first.
	MaxSessions int
}

const (
	defaultIdleTTL     = 30 * time.Minute
	defaultMaxSessions = 10000
)

func (l Limits) withDefaults() Limits {
	if l.IdleTTL <= 0 {
		l.IdleTTL = defaultIdleTTL
	}
	if l.MaxSessions <= 0 {
		l.MaxSessions = defaultMaxSessions
	}
	return l
}

type registryEntry struct {
	id       string
	session  *Session
	lastSeen time.Time
}

// Registry holds the sessions of this process.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*list.Element
	lru      *list.List // front is most recently used
	factory  SessionFactory
	limits   Limits
	building singleflight.Group
	nowFunc  func() time.Time
}

func NewRegistry(factory SessionFactory, limits Limits) *Registry {
	return &Registry{
		sessions: map[string]*list.Element{},
		lru:      list.New(),
		factory:  factory,
		limits:   limits.withDefaults(),
		nowFunc:  time.Now,
	}
}

// Get returns the session for id, creating it if needed. Concurrent first
// requests for the same id share one factory call, and the factory runs
// without holding the registry lock.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if s, ok := r.lookup(id); ok {
		return s, nil
	}

	v, err, _ := r.building.Do(id, func() (interface{}, error) {
		if s, ok := r.lookup(id); ok {
			return s, nil
		}
		s, err := r.factory(ctx, id)
		if err != nil {
			return nil, err
		}
		r.insert(id, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*registryEntry)
	e.lastSeen = r.nowFunc()
	r.lru.MoveToFront(el)
	return e.session, true
}

func (r *Registry) insert(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	r.expire(now)
	for r.lru.Len() >= r.limits.MaxSessions {
		r.evictOne()
	}
	r.sessions[id] = r.lru.PushFront(&registryEntry{id: id, session: s, lastSeen: now})
}

// expire drops idle sessions from the back of the list. Must hold r.mu.
func (r *Registry) expire(now time.Time) {
	for el := r.lru.Back(); el != nil; el = r.lru.Back() {
		e := el.Value.(*registryEntry)
		if now.Sub(e.lastSeen) < r.limits.IdleTTL {
			return
		}
		r.remove(el)
	}
}

// evictOne drops the least recently used session that has no checkout in
// flight, or the least recently used one if every session is checking out.
// Must hold r.mu.
func (r *Registry) evictOne() {
	for el := r.lru.Back(); el != nil; el = el.Prev() {
		if co := el.Value.(*registryEntry).session.Checkout; co == nil || co.State().Accepting() {
			r.remove(el)
			return
		}
	}
	if el := r.lru.Back(); el != nil {
		r.remove(el)
	}
}

func (r *Registry) remove(el *list.Element) {
	e := r.lru.Remove(el).(*registryEntry)
	delete(r.sessions, e.id)
}

// Forget drops a session. Its cart stays in storage.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.sessions[id]; ok {
		r.remove(el)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}
