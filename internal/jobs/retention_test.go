package jobs

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	removed int64
	err     error
}

func (p *fakePurger) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.removed, p.err
}

func (p *fakePurger) calls() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.cutoffs...)
}

func TestRetentionSweepCutoff(t *testing.T) {
	p := &fakePurger{removed: 3}
	j := NewRetentionJob(p, nil, log.New(io.Discard, "", 0), 7*24*time.Hour, 0)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }
	j.sweep()

	calls := p.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	want := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	if !calls[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", calls[0], want)
	}
	if j.interval != time.Hour {
		t.Errorf("default interval = %v, want 1h", j.interval)
	}
}

func TestRetentionSweepError(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	j := NewRetentionJob(p, nil, log.New(io.Discard, "", 0), time.Hour, time.Minute)

	// Errors are logged, never fatal.
	j.sweep()
	if len(p.calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(p.calls()))
	}
}

func TestRetentionStartStop(t *testing.T) {
	p := &fakePurger{}
	j := NewRetentionJob(p, nil, log.New(io.Discard, "", 0), time.Hour, 10*time.Millisecond)

	j.Start()
	deadline := time.Now().Add(2 * time.Second)
	for len(p.calls()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()

	n := len(p.calls())
	if n < 2 {
		t.Fatalf("sweeps = %d, want an immediate sweep plus ticks", n)
	}
	time.Sleep(30 * time.Millisecond)
	if len(p.calls()) != n {
		t.Error("job kept running after Stop")
	}
}
