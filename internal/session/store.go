// File: internal/session/store.go

// Package session keeps per-session result tables in memory so the download
// endpoint can serve a CSV after the batch that produced it has finished.
// The store is bounded: least-recently-used eviction plus a TTL, so abandoned
// sessions cannot grow the process without limit.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var (
	// ErrNotFound is returned when a session ID is unknown or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrRowOutOfRange is returned when a reference update addresses a row
	// the session's table does not have.
	ErrRowOutOfRange = errors.New("row index out of range")
)

// Clock abstracts time for expiry decisions so tests can drive it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is a thread-safe LRU map of session ID to result table.
// The doubly-linked list gives O(1) recency updates and tail eviction.
type Store struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    Clock
	items    map[string]*node
	head     *node // most recently used
	tail     *node // least recently used
}

type node struct {
	id        string
	table     *schemas.ResultTable
	expiresAt time.Time
	prev      *node
	next      *node
}

// NewStore returns a Store using the system clock.
func NewStore(capacity int, ttl time.Duration) *Store {
	return NewStoreWithClock(capacity, ttl, systemClock{})
}

// NewStoreWithClock returns a Store whose expiry decisions use the given clock.
func NewStoreWithClock(capacity int, ttl time.Duration, clock Clock) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		items:    make(map[string]*node),
	}
}

// Put registers the result table for a session, replacing any previous one.
// Inserting may evict the least recently used session once capacity is hit.
func (s *Store) Put(id string, table *schemas.ResultTable) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.items[id]; ok {
		n.table = table
		n.expiresAt = s.clock.Now().Add(s.ttl)
		s.moveToHead(n)
		return
	}

	if len(s.items) >= s.capacity {
		s.evictTail()
	}

	n := &node{
		id:        id,
		table:     table,
		expiresAt: s.clock.Now().Add(s.ttl),
	}
	s.items[id] = n
	s.addToHead(n)
}

// UpdateReference sets the reference code on one row of a session's table.
// A successful update counts as activity and refreshes the session's TTL.
func (s *Store) UpdateReference(id string, rowIndex int, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	if rowIndex < 0 || rowIndex >= len(n.table.Rows) {
		return ErrRowOutOfRange
	}

	n.table.Rows[rowIndex].Reference = reference
	n.expiresAt = s.clock.Now().Add(s.ttl)
	s.moveToHead(n)
	return nil
}

// Snapshot returns a deep copy of a session's table, safe to read while the
// batch that owns the session is still writing to it.
func (s *Store) Snapshot(id string) (*schemas.ResultTable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.lookup(id)
	if !ok {
		return nil, false
	}
	s.moveToHead(n)
	return copyTable(n.table), true
}

// Delete removes a session outright.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.items[id]; ok {
		s.removeNode(n)
		delete(s.items, id)
	}
}

// Len reports the number of live (non-expired) sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	count := 0
	for _, n := range s.items {
		if !now.After(n.expiresAt) {
			count++
		}
	}
	return count
}

// lookup finds a node and expires it lazily. Callers hold the lock.
func (s *Store) lookup(id string) (*node, bool) {
	n, ok := s.items[id]
	if !ok {
		return nil, false
	}
	if s.clock.Now().After(n.expiresAt) {
		s.removeNode(n)
		delete(s.items, id)
		return nil, false
	}
	return n, true
}

func (s *Store) addToHead(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *Store) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
}

func (s *Store) moveToHead(n *node) {
	if s.head == n {
		return
	}
	s.removeNode(n)
	s.addToHead(n)
}

func (s *Store) evictTail() {
	if s.tail == nil {
		return
	}
	delete(s.items, s.tail.id)
	s.removeNode(s.tail)
}

func copyTable(t *schemas.ResultTable) *schemas.ResultTable {
	out := &schemas.ResultTable{
		Headers:  append([]string(nil), t.Headers...),
		Rows:     make([]schemas.RowRecord, len(t.Rows)),
		Filename: t.Filename,
	}
	for i, row := range t.Rows {
		fields := make(map[string]string, len(row.Fields))
		for k, v := range row.Fields {
			fields[k] = v
		}
		out.Rows[i] = schemas.RowRecord{Fields: fields, Reference: row.Reference}
	}
	return out
}
