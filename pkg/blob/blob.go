// Package blob stores executable units under opaque handles. Rewritten
// modules refer to their finalized dependencies and cycle shells by handle.
package blob

import (
	"strconv"
	"strings"
	"sync"
)

// Prefix starts every handle issued by a Store.
const Prefix = "blob:modshim/"

// Unit is one stored executable unit.
type Unit struct {
	Handle string
	// URL is the module the unit was produced for. Shells carry the URL of
	// the module they stand in for.
	URL    string
	Source string
	Shell  bool
}

// Store is a concurrency-safe handle store.
type Store struct {
	mu    sync.RWMutex
	next  int
	units map[string]Unit
	bytes int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{units: map[string]Unit{}}
}

// Put stores source for url and returns its new handle.
func (s *Store) Put(url, source string) string {
	return s.put(url, source, false)
}

// PutShell stores a cycle shell standing in for url.
func (s *Store) PutShell(url, source string) string {
	return s.put(url, source, true)
}

func (s *Store) put(url, source string, shell bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := Prefix + strconv.Itoa(s.next)
	s.units[handle] = Unit{Handle: handle, URL: url, Source: source, Shell: shell}
	s.bytes += int64(len(source))

	return handle
}

// Get returns the unit stored under handle.
func (s *Store) Get(handle string) (Unit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[handle]

	return u, ok
}

// Release drops a unit. Releasing an unknown handle is a no-op.
func (s *Store) Release(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.units[handle]; ok {
		s.bytes -= int64(len(u.Source))
		delete(s.units, handle)
	}
}

// Len returns the number of stored units.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.units)
}

// Size returns the total source bytes held.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.bytes
}

// IsHandle reports whether s looks like a handle issued by a Store.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, Prefix)
}
