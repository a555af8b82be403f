// Copyright The Hostwatch Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package health // import "github.com/hostwatch/hostwatch/internal/health"

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore keeps the latest report per (entity, source, property) key with
// TTL expiry. It is the node-local stand-in for a cluster health subsystem and
// backs the one-shot check command.
type MemoryStore struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]Report
	closed  bool
}

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]Report),
	}
}

// Submit files the report under its key, replacing any previous report with
// the same key.
func (s *MemoryStore) Submit(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.entries[r.Key()] = r
	return nil
}

// Get returns the live report for the given key, if any. Expired reports are
// treated as absent.
func (s *MemoryStore) Get(entityID, sourceID, property string) (Report, bool) {
	key := entityID + "|" + sourceID + "|" + property

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[key]
	if !ok || r.Expired(s.now()) {
		return Report{}, false
	}
	return r, true
}

// Snapshot returns all live reports ordered by entity then property.
func (s *MemoryStore) Snapshot() []Report {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Report, 0, len(s.entries))
	for _, r := range s.entries {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Property < out[j].Property
	})
	return out
}

// Len counts stored reports, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops expired reports and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, r := range s.entries {
		if r.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Swept expired health reports",
			zap.Int("removed", removed),
			zap.Int("remaining", len(s.entries)))
	}
	return removed
}

// Close marks the store disposed. Further submissions fail with ErrSinkClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
