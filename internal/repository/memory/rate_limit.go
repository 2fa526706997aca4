package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/arklim/auction-registry/internal/core/port"
)

const defaultAttemptTTL = 10 * time.Minute

// RateLimitStore keeps attempt timestamps per identifier in a sliding window.
// Identifiers whose newest attempt is older than the TTL are swept on write.
type RateLimitStore struct {
	mu        sync.Mutex
	attempts  map[string][]time.Time
	ttl       time.Duration
	lastSweep time.Time
}

// NewRateLimitStore constructs an empty store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{attempts: make(map[string][]time.Time), ttl: defaultAttemptTTL}
}

// WithTTL sets how long an idle identifier is retained. It must cover the longest window counted.
func (s *RateLimitStore) WithTTL(ttl time.Duration) *RateLimitStore {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// RecordAttempt stores at in the identifier's window.
func (s *RateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(at)
	entries := append(s.attempts[identifier], at)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	s.attempts[identifier] = entries
	return nil
}

// CountAttempts counts attempts in (reference-window, reference].
func (s *RateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, at := range s.attempts[identifier] {
		if inWindow(at, window, reference) {
			count++
		}
	}
	return count, nil
}

// TrimWindow removes attempts at or before reference-window.
func (s *RateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := reference.Add(-window)
	kept := s.attempts[identifier][:0]
	for _, at := range s.attempts[identifier] {
		if at.After(threshold) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(s.attempts, identifier)
		return nil
	}
	s.attempts[identifier] = kept
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (s *RateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, at := range s.attempts[identifier] {
		if inWindow(at, window, reference) {
			return at, true, nil
		}
	}
	return time.Time{}, false, nil
}

// ClearAttempts drops the identifier's window.
func (s *RateLimitStore) ClearAttempts(_ context.Context, identifier string) error {
	s.mu.Lock()
	delete(s.attempts, identifier)
	s.mu.Unlock()
	return nil
}

// sweep drops identifiers idle for at least the TTL, at most once per TTL. Must be called with mu held.
func (s *RateLimitStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.ttl {
		return
	}
	for identifier, entries := range s.attempts {
		if len(entries) == 0 || now.Sub(entries[len(entries)-1]) >= s.ttl {
			delete(s.attempts, identifier)
		}
	}
	s.lastSweep = now
}

func inWindow(at time.Time, window time.Duration, reference time.Time) bool {
	return at.After(reference.Add(-window)) && !at.After(reference)
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
