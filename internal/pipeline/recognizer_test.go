package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBatchRecognizerSilenceGuard(t *testing.T) {
	tests := []struct {
		name      string
		samples   []int16
		wantCalls int
		wantText  string
	}{
		{"digital silence", silence(2 * time.Second), 0, ""},
		{"below threshold", level(2*time.Second, 100), 0, ""},
		{"speech", tone(2*time.Second, 300, 0.3), 1, "words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeBatch{text: "words"}
			m := metrics.New()
			r := NewBatch(model, NewSegmenter(testRate, 2*time.Second, 3*time.Second), 0.01, m)

			task, ok := r.Feed(audio.Bytes(tt.samples), time.Unix(0, 0))
			if !ok {
				t.Fatal("2s of audio should produce a task")
			}
			ev, err := task(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind != stt.EventFinal || ev.Text != tt.wantText {
				t.Errorf("event = %+v", ev)
			}
			if got := len(model.calls()); got != tt.wantCalls {
				t.Errorf("model calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCalls == 0 && testutil.ToFloat64(m.SilentSegments) != 1 {
				t.Error("silent segment was not counted")
			}
		})
	}
}

func TestBatchRecognizerWaitsForSegment(t *testing.T) {
	r := NewBatch(&fakeBatch{}, NewSegmenter(testRate, 2*time.Second, 3*time.Second), 0.01, metrics.New())
	if _, ok := r.Feed(audio.Bytes(tone(time.Second, 300, 0.3)), time.Unix(0, 0)); ok {
		t.Error("1s of audio should not produce a task")
	}
	if got := r.Buffered(); got != time.Second {
		t.Errorf("Buffered() = %v, want 1s", got)
	}
	if !r.Concurrent() {
		t.Error("batch tasks are independent")
	}
}

func TestStreamingRecognizerFeedsEveryChunk(t *testing.T) {
	stream := &fakeStream{}
	r := NewStreaming(stream, metrics.New())
	if r.Concurrent() {
		t.Error("streaming tasks must be sequential")
	}

	task, ok := r.Feed(audio.Bytes(tone(100*time.Millisecond, 300, 0.3)), time.Unix(0, 0))
	if !ok {
		t.Fatal("every chunk should produce a task")
	}
	ev, err := task(context.Background())
	if err != nil || ev.Kind != stt.EventPartial {
		t.Errorf("event = %+v, err = %v", ev, err)
	}
	if err := r.Close(); err != nil || !stream.closed.Load() {
		t.Errorf("Close() = %v, closed = %v", err, stream.closed.Load())
	}
}
