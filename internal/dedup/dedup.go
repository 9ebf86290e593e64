package dedup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Set remembers event IDs handled within the current window.
//
// The window is fixed, not sliding: every interval the whole set is
// dropped, so an event redelivered right after a clear is treated as new.
// This is a coarse, single-process guard and nothing is persisted.
type Set struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	interval time.Duration
	logger   *zap.Logger
}

// NewSet creates a set that is cleared every interval once Run is started
func NewSet(interval time.Duration, logger *zap.Logger) *Set {
	return &Set{
		seen:     make(map[string]struct{}),
		interval: interval,
		logger:   logger,
	}
}

// Seen reports whether id was marked in the current window
func (s *Set) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Mark records id as handled. Empty IDs are ignored.
func (s *Set) Mark(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.seen[id] = struct{}{}
	s.mu.Unlock()
}

// CheckAndMark reports whether id was already handled in this window and
// marks it. An empty id is never a duplicate.
func (s *Set) CheckAndMark(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

// Clear drops every remembered ID
func (s *Set) Clear() {
	s.mu.Lock()
	n := len(s.seen)
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	if n > 0 {
		s.logger.Debug("Cleared processed events", zap.Int("count", n))
	}
}

// Len returns the number of IDs in the current window
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Run clears the set every interval until ctx is done
func (s *Set) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting event dedup window", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping event dedup window")
			return
		case <-ticker.C:
			s.Clear()
		}
	}
}
