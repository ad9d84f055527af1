package httpapi

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lukasbauer/livescribe/internal/pipeline"
)

// SessionRegistry tracks active streaming sessions and supports graceful
// draining. When draining is enabled, new sessions are rejected while
// in-flight sessions finish naturally.
//
// The draining check and wg.Add happen under mu so StartDraining+Wait cannot
// slip between them.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
	sessions map[string]*pipeline.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*pipeline.Session)}
}

// Add reserves a slot for a new session. Returns false if the registry is
// draining.
func (sr *SessionRegistry) Add() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Track makes a running session visible to Snapshot.
func (sr *SessionRegistry) Track(s *pipeline.Session) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sessions[s.ID()] = s
}

// Done releases the slot taken by Add. Must be called exactly once per
// successful Add; id may be empty if the session was never tracked.
func (sr *SessionRegistry) Done(id string) {
	sr.mu.Lock()
	delete(sr.sessions, id)
	sr.mu.Unlock()
	sr.count.Add(-1)
	sr.wg.Done()
}

// StartDraining makes future Add calls return false.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of reserved slots.
func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Wait blocks until every Add has been matched by Done.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}

// Snapshot returns the stats of tracked sessions, oldest first.
func (sr *SessionRegistry) Snapshot(now time.Time) []pipeline.Stats {
	sr.mu.Lock()
	out := make([]pipeline.Stats, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		out = append(out, s.Stats(now))
	}
	sr.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
