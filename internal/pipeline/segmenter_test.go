package pipeline

import (
	"testing"
	"time"
)

const testRate = 16000

// chunkOf returns d worth of mono 16-bit PCM at testRate.
func chunkOf(d time.Duration, fill byte) []byte {
	n := int(d.Seconds()*testRate) * 2
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestSegmenterDrainsAtRecordTimeout(t *testing.T) {
	s := NewSegmenter(testRate, 2*time.Second, 3*time.Second)
	start := time.Unix(1000, 0)

	var segments [][]byte
	for i := 0; i < 25; i++ {
		at := start.Add(time.Duration(i) * 100 * time.Millisecond)
		seg, discarded := s.Push(chunkOf(100*time.Millisecond, byte(i)), at)
		if discarded != 0 {
			t.Fatalf("chunk %d: unexpected discard of %d bytes", i, discarded)
		}
		if seg != nil {
			segments = append(segments, seg)
		}
		if s.Buffered() >= 2*time.Second {
			t.Fatalf("chunk %d: buffer holds %v after push", i, s.Buffered())
		}
	}

	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if got, want := len(segments[0]), 2*testRate*2; got != want {
		t.Errorf("segment length = %d, want %d", got, want)
	}
	if got := s.Buffered(); got != 500*time.Millisecond {
		t.Errorf("Buffered() = %v, want 500ms", got)
	}
}

func TestSegmenterSegmentNotAliased(t *testing.T) {
	s := NewSegmenter(testRate, 200*time.Millisecond, time.Second)
	now := time.Unix(0, 0)

	s.Push(chunkOf(100*time.Millisecond, 1), now)
	seg, _ := s.Push(chunkOf(100*time.Millisecond, 1), now.Add(100*time.Millisecond))
	if seg == nil {
		t.Fatal("expected a segment")
	}
	s.Push(chunkOf(100*time.Millisecond, 9), now.Add(200*time.Millisecond))
	for i, b := range seg {
		if b != 1 {
			t.Fatalf("segment byte %d changed to %d after later push", i, b)
		}
	}
}

func TestSegmenterPhraseTimeoutDiscards(t *testing.T) {
	s := NewSegmenter(testRate, 2*time.Second, 3*time.Second)
	start := time.Unix(1000, 0)

	// 1s of audio, then a 4s gap.
	for i := 0; i < 10; i++ {
		s.Push(chunkOf(100*time.Millisecond, 1), start.Add(time.Duration(i)*100*time.Millisecond))
	}
	last := start.Add(900 * time.Millisecond)
	if s.Idle(last.Add(3 * time.Second)) {
		t.Error("Idle at exactly the phrase timeout should be false")
	}
	if !s.Idle(last.Add(3*time.Second + time.Millisecond)) {
		t.Error("Idle past the phrase timeout should be true")
	}

	seg, discarded := s.Push(chunkOf(100*time.Millisecond, 2), last.Add(4*time.Second))
	if seg != nil {
		t.Error("gap must not flush the stale buffer as a segment")
	}
	if want := testRate * 2; discarded != want {
		t.Errorf("discarded = %d, want %d", discarded, want)
	}
	if got := s.Buffered(); got != 100*time.Millisecond {
		t.Errorf("Buffered() = %v, want only the new chunk", got)
	}
}

func TestSegmenterGapAtBoundaryKeepsBuffer(t *testing.T) {
	s := NewSegmenter(testRate, 2*time.Second, 3*time.Second)
	start := time.Unix(0, 0)

	s.Push(chunkOf(100*time.Millisecond, 1), start)
	_, discarded := s.Push(chunkOf(100*time.Millisecond, 1), start.Add(3*time.Second))
	if discarded != 0 {
		t.Errorf("gap equal to the phrase timeout discarded %d bytes", discarded)
	}
	if got := s.Buffered(); got != 200*time.Millisecond {
		t.Errorf("Buffered() = %v, want 200ms", got)
	}
}

func TestSegmenterIdleBeforeFirstChunk(t *testing.T) {
	s := NewSegmenter(testRate, 2*time.Second, 3*time.Second)
	if s.Idle(time.Now()) {
		t.Error("fresh segmenter should not report idle")
	}
	if !s.LastChunkAt().IsZero() {
		t.Error("LastChunkAt should be zero before any push")
	}
}
