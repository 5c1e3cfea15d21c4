package conversation

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	st  State
	exp time.Time
}

// MemoryStore keeps conversations in process memory with a TTL.
type MemoryStore struct {
	mu  sync.Mutex
	ttl time.Duration
	seq uint64
	m   map[int64]memEntry
	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, m: map[int64]memEntry{}, now: time.Now}
}

// SetTTL applies to states written afterwards.
func (s *MemoryStore) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *MemoryStore) live(admin int64, now time.Time) (State, bool) {
	e, ok := s.m[admin]
	if !ok {
		return State{}, false
	}
	if !now.Before(e.exp) {
		delete(s.m, admin)
		return State{}, false
	}
	return e.st, true
}

func (s *MemoryStore) put(admin int64, st State, now time.Time) State {
	s.seq++
	st.Version = s.seq
	st.UpdatedAt = now
	s.m[admin] = memEntry{st: st, exp: now.Add(s.ttl)}
	return st
}

func (s *MemoryStore) Load(_ context.Context, admin int64) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.live(admin, s.now())
	return st, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, admin int64, st State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(admin, st, s.now()), nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, admin int64, expect uint64, next *State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cur, ok := s.live(admin, now)
	if !ok || cur.Version != expect {
		return false, nil
	}
	if next == nil {
		delete(s.m, admin)
		return true, nil
	}
	s.put(admin, *next, now)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, admin int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(admin, s.now())
	delete(s.m, admin)
	return ok, nil
}

// Sweep drops expired conversations and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.m {
		if !now.Before(e.exp) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored (possibly expired) conversations.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
