package store

import "sync"

// =============================================================================
// SCOPE LOCKS - One RW lock per (module, version)
// =============================================================================

// Scope identifies the unit of recalculation.
type Scope struct {
	ModuleID  string
	VersionID string
}

// ScopeLocks hands out a lazily created RW lock per scope. Table builds take
// the read side; write batches (writes + recalculation) take the write side.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[Scope]*sync.RWMutex
}

func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{locks: make(map[Scope]*sync.RWMutex)}
}

func (s *ScopeLocks) lock(scope Scope) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[scope]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[scope] = l
	}
	return l
}

// Read runs fn while holding the scope's read lock.
func (s *ScopeLocks) Read(scope Scope, fn func()) {
	l := s.lock(scope)
	l.RLock()
	defer l.RUnlock()
	fn()
}

// Write runs fn while holding the scope's write lock.
func (s *ScopeLocks) Write(scope Scope, fn func()) {
	l := s.lock(scope)
	l.Lock()
	defer l.Unlock()
	fn()
}
