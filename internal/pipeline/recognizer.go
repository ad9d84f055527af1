package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
)

// Task is one unit of recognition work, run off the ingestion path.
type Task func(ctx context.Context) (stt.Event, error)

// Recognizer turns filtered mono PCM into recognition tasks.
// Feed and Buffered are called only from the session goroutine.
type Recognizer interface {
	// Feed accepts one filtered chunk. It returns a task when the input is
	// ready for the model.
	Feed(pcm []byte, at time.Time) (Task, bool)

	// Concurrent reports whether tasks may run in parallel.
	Concurrent() bool

	// Buffered is the audio held back waiting for a segment boundary.
	Buffered() time.Duration

	Close() error
}

// batchRecognizer segments audio by wall clock and transcribes each segment
// independently.
type batchRecognizer struct {
	model     stt.Batch
	seg       *Segmenter
	threshold float64
	metrics   *metrics.Metrics
}

// NewBatch returns a Recognizer that submits one task per drained segment.
// Segments whose RMS is below silenceRMS yield an empty final without
// reaching the model.
func NewBatch(model stt.Batch, seg *Segmenter, silenceRMS float64, m *metrics.Metrics) Recognizer {
	return &batchRecognizer{model: model, seg: seg, threshold: silenceRMS, metrics: m}
}

func (r *batchRecognizer) Feed(pcm []byte, at time.Time) (Task, bool) {
	segment, discarded := r.seg.Push(pcm, at)
	if discarded > 0 {
		r.metrics.SegmentsDiscarded.Inc()
	}
	if segment == nil {
		return nil, false
	}

	return func(ctx context.Context) (stt.Event, error) {
		samples := audio.Float32s(segment)
		if audio.RMS(samples) < r.threshold {
			r.metrics.SilentSegments.Inc()
			return stt.Event{Kind: stt.EventFinal}, nil
		}

		start := time.Now()
		tr, err := r.model.Transcribe(ctx, samples)
		r.metrics.RecognitionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return stt.Event{}, err
		}
		return stt.Event{
			Kind:     stt.EventFinal,
			Text:     strings.TrimSpace(tr.Text),
			Language: tr.Language,
		}, nil
	}, true
}

func (r *batchRecognizer) Concurrent() bool { return true }

func (r *batchRecognizer) Buffered() time.Duration { return r.seg.Buffered() }

func (r *batchRecognizer) Close() error { return nil }

// streamingRecognizer forwards every chunk to a stateful stream that decides
// its own boundaries.
type streamingRecognizer struct {
	stream  stt.Stream
	metrics *metrics.Metrics
}

// NewStreaming returns a Recognizer over an open stream. Its tasks must run
// one at a time in order.
func NewStreaming(stream stt.Stream, m *metrics.Metrics) Recognizer {
	return &streamingRecognizer{stream: stream, metrics: m}
}

func (r *streamingRecognizer) Feed(pcm []byte, at time.Time) (Task, bool) {
	samples := audio.Int16s(pcm)
	return func(ctx context.Context) (stt.Event, error) {
		start := time.Now()
		ev, err := r.stream.Feed(ctx, samples)
		r.metrics.RecognitionDuration.Observe(time.Since(start).Seconds())
		return ev, err
	}, true
}

func (r *streamingRecognizer) Concurrent() bool { return false }

func (r *streamingRecognizer) Buffered() time.Duration { return 0 }

func (r *streamingRecognizer) Close() error { return r.stream.Close() }
