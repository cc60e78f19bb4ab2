package gateway

import (
	"sync"
	"time"
)

// DisconnectInfo records what a GatewayClient needs to resume: the sequence
// it had last delivered when it died, and a weak reference back to its
// parent GatewayUser so a successful Resume can re-attach without the user
// itself having to track former clients.
type DisconnectInfo struct {
	SessionToken      string
	DisconnectedAtSeq uint64
	DisconnectedAt    time.Time
	Parent            *GatewayUser
	History           *eventHistory
}

// resumeEntry pairs a DisconnectInfo with its insertion time, used for the
// age-based eviction sweep.
type resumeEntry struct {
	info       DisconnectInfo
	insertedAt time.Time
}

// ResumableClientsStore holds DisconnectInfo for recently-disconnected
// clients, keyed by session token, bounded by both entry count and age. A
// lookup for a token that has aged out of the window is treated identically
// to a token that was never present (ResumeUnknown).
type ResumableClientsStore struct {
	mu        sync.Mutex
	entries   map[string]resumeEntry
	order     []string // insertion order, oldest first, for the sweep
	maxSize   int
	retention time.Duration
}

// NewResumableClientsStore constructs a store retaining at most maxSize
// entries, each evicted once older than retention.
func NewResumableClientsStore(maxSize int, retention time.Duration) *ResumableClientsStore {
	return &ResumableClientsStore{
		entries:   make(map[string]resumeEntry),
		maxSize:   maxSize,
		retention: retention,
	}
}

// Insert records info, keyed by its SessionToken, then sweeps entries that
// have aged out or exceed the configured maximum size.
func (s *ResumableClientsStore) Insert(info DisconnectInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if _, exists := s.entries[info.SessionToken]; !exists {
		s.order = append(s.order, info.SessionToken)
	}
	s.entries[info.SessionToken] = resumeEntry{info: info, insertedAt: now}

	s.sweepLocked(now)
}

// Take removes and returns the entry for token, if present and not expired.
// Returns ok=false for both an unknown token and one that has aged out.
func (s *ResumableClientsStore) Take(token string) (DisconnectInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return DisconnectInfo{}, false
	}
	delete(s.entries, token)
	s.removeFromOrderLocked(token)

	if time.Since(entry.insertedAt) > s.retention {
		return DisconnectInfo{}, false
	}
	return entry.info, true
}

// sweepLocked evicts entries older than the retention window, then trims
// down to maxSize oldest-first if still over capacity. Callers must hold mu.
func (s *ResumableClientsStore) sweepLocked(now time.Time) {
	cutoff := 0
	for cutoff < len(s.order) {
		token := s.order[cutoff]
		entry, ok := s.entries[token]
		if !ok || now.Sub(entry.insertedAt) > s.retention {
			if ok {
				delete(s.entries, token)
			}
			cutoff++
			continue
		}
		break
	}
	s.order = s.order[cutoff:]

	for len(s.order) > s.maxSize {
		token := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, token)
	}
}

func (s *ResumableClientsStore) removeFromOrderLocked(token string) {
	for i, t := range s.order {
		if t == token {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Len reports the current number of retained entries, used by tests.
func (s *ResumableClientsStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
