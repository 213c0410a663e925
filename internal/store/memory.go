package store

import (
	"sort"
	"sync"
)

const (
	subscriberBuffer = 100

	// DefaultRetainFinished is how many finished sessions are kept.
	DefaultRetainFinished = 256
)

// MemoryStore is an in-memory implementation of [Store].
//
// Active sessions are always kept. Finished sessions are retained up to a
// limit; the oldest finished snapshots are evicted first. Subscribers
// receive updates via buffered channels; when a buffer is full the update
// is dropped for that subscriber.
type MemoryStore struct {
	mu             sync.RWMutex
	sessions       map[string]SessionSnapshot
	retainFinished int

	subMu       sync.RWMutex
	subscribers map[chan SessionSnapshot]struct{}
}

// NewMemoryStore creates a [MemoryStore] that keeps at most retainFinished
// finished sessions. A non-positive value selects [DefaultRetainFinished].
func NewMemoryStore(retainFinished int) *MemoryStore {
	if retainFinished <= 0 {
		retainFinished = DefaultRetainFinished
	}
	return &MemoryStore{
		sessions:       make(map[string]SessionSnapshot),
		retainFinished: retainFinished,
		subscribers:    make(map[chan SessionSnapshot]struct{}),
	}
}

// Update stores a snapshot and notifies all subscribers.
func (m *MemoryStore) Update(snapshot SessionSnapshot) {
	m.mu.Lock()
	m.sessions[snapshot.ID] = snapshot
	if snapshot.Finished() {
		m.evictFinishedLocked()
	}
	m.mu.Unlock()

	m.notifySubscribers(snapshot)
}

// Get returns the snapshot stored for id.
func (m *MemoryStore) Get(id string) (SessionSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetAll returns a snapshot of all stored sessions ordered by start time.
func (m *MemoryStore) GetAll() []SessionSnapshot {
	m.mu.RLock()
	results := make([]SessionSnapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		results = append(results, s)
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].StartedAt.Before(results[j].StartedAt)
	})
	return results
}

// Subscribe creates a subscription with a buffer of 100 updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done.
func (m *MemoryStore) Subscribe() <-chan SessionSnapshot {
	ch := make(chan SessionSnapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan SessionSnapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// evictFinishedLocked drops the oldest finished sessions beyond the limit.
func (m *MemoryStore) evictFinishedLocked() {
	finished := make([]SessionSnapshot, 0)
	for _, s := range m.sessions {
		if s.Finished() {
			finished = append(finished, s)
		}
	}
	if len(finished) <= m.retainFinished {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, s := range finished[:len(finished)-m.retainFinished] {
		delete(m.sessions, s.ID)
	}
}

// notifySubscribers sends the snapshot to all subscribers without blocking.
func (m *MemoryStore) notifySubscribers(snapshot SessionSnapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
			// subscriber is slow, drop the message
		}
	}
}
