// Package dedup suppresses duplicate packets. Digipeated copies of the same
// transmission arrive on the feed seconds apart with differing paths, so the
// duplicate key is source plus info field, ignoring the routing header.
package dedup

import (
	"strings"
	"sync"
	"time"
)

// Suppressor is a time-windowed seen-cache. Safe for concurrent use.
type Suppressor struct {
	mu         sync.Mutex
	window     time.Duration
	seen       map[string]time.Time
	checked    uint64
	duplicates uint64
}

// New creates a Suppressor with the given duplicate window.
func New(window time.Duration) *Suppressor {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Suppressor{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// IsDuplicate reports whether the raw line repeats a packet already seen
// within the window, and records it either way.
func (s *Suppressor) IsDuplicate(raw string, now time.Time) bool {
	key := duplicateKey(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked++
	if len(s.seen) > 4096 {
		s.prune(now)
	}
	if last, ok := s.seen[key]; ok && now.Sub(last) < s.window {
		s.duplicates++
		return true
	}
	s.seen[key] = now
	return false
}

// Stats returns total checked lines, duplicates found, and cache size.
func (s *Suppressor) Stats() (checked, duplicates uint64, cacheSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checked, s.duplicates, len(s.seen)
}

func (s *Suppressor) prune(now time.Time) {
	for key, last := range s.seen {
		if now.Sub(last) >= s.window {
			delete(s.seen, key)
		}
	}
}

// duplicateKey strips the routing header so the same packet heard via
// different digipeater paths collapses to one key.
func duplicateKey(raw string) string {
	gt := strings.IndexByte(raw, '>')
	colon := strings.IndexByte(raw, ':')
	if gt <= 0 || colon < gt {
		return raw
	}
	return raw[:gt] + raw[colon:]
}
