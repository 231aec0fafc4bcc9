package state

import (
	"sync"
	"time"
)

// Store keeps one Context per conversation id, created on first access.
// Without a TTL contexts live for the process lifetime.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	ctx  *Context
	lock sync.Mutex
	refs int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL enables eviction of contexts idle for longer than ttl on Sweep.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[int64]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the context for chatID, creating it when absent. The context
// is refreshed before the store lock is released, so a concurrent Sweep
// never evicts a context Get is about to return. A zero chatID yields a
// fresh context that is not stored.
func (s *Store) Get(chatID int64) *Context {
	if chatID == 0 {
		return newContext(0, s.now)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(chatID)
	e.ctx.touch()
	return e.ctx
}

// Lock serializes work on one conversation and returns the matching unlock
// function. Different conversations never block each other; a zero chatID
// is not locked. A context is never evicted while its lock is held or awaited.
func (s *Store) Lock(chatID int64) func() {
	if chatID == 0 {
		return func() {}
	}
	s.mu.Lock()
	e := s.entryLocked(chatID)
	e.refs++
	s.mu.Unlock()

	e.lock.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.lock.Unlock()
			s.mu.Lock()
			e.refs--
			s.mu.Unlock()
		})
	}
}

func (s *Store) entryLocked(chatID int64) *entry {
	e, ok := s.entries[chatID]
	if !ok {
		e = &entry{ctx: newContext(chatID, s.now)}
		s.entries[chatID] = e
	}
	return e
}

// Peek returns the stored context without creating or touching it.
func (s *Store) Peek(chatID int64) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		return nil, false
	}
	return e.ctx, true
}

// Delete drops the context of chatID unless an update currently holds its lock.
func (s *Store) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[chatID]; ok && e.refs == 0 {
		delete(s.entries, chatID)
	}
}

// Len returns the number of stored contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TTL returns the configured idle TTL, zero when eviction is disabled.
func (s *Store) TTL() time.Duration { return s.ttl }

// Sweep evicts contexts idle for longer than the TTL and returns how many
// were removed. It is a no-op without a TTL.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.refs > 0 {
			continue
		}
		if now.Sub(e.ctx.LastSeen()) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
