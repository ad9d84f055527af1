package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testConfig() Config {
	return Config{
		Format:             audio.Format{SampleRate: testRate, Channels: 1, SampleWidth: 2},
		RecordTimeout:      2 * time.Second,
		PhraseTimeout:      3 * time.Second,
		SilenceRMS:         0.01,
		SessionInflight:    1,
		QueueDepth:         32,
		InferenceTimeout:   5 * time.Second,
		TranslationTimeout: 5 * time.Second,
	}
}

func testDeps(deps Deps) Deps {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	return deps
}

// tone returns d of a sine at freq with peak amplitude amp in [0, 1].
func tone(d time.Duration, freq, amp float64) []int16 {
	n := int(d.Seconds() * testRate)
	out := make([]int16, n)
	for i := range out {
		out[i] = audio.ClampInt16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func silence(d time.Duration) []int16 {
	return make([]int16, int(d.Seconds()*testRate))
}

func level(d time.Duration, v int16) []int16 {
	out := make([]int16, int(d.Seconds()*testRate))
	for i := range out {
		out[i] = v
	}
	return out
}

// chunked splits samples into 100ms chunks stamped from start.
func chunked(samples []int16, start time.Time) []Chunk {
	const per = testRate / 10
	var out []Chunk
	for i := 0; i < len(samples); i += per {
		end := i + per
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, Chunk{
			Data: audio.Bytes(samples[i:end]),
			At:   start.Add(time.Duration(i) * time.Second / testRate),
		})
	}
	return out
}

type fakeSink struct {
	msgs  chan Message
	audio chan []byte
	err   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{msgs: make(chan Message, 64), audio: make(chan []byte, 256)}
}

func (s *fakeSink) SendMessage(ctx context.Context, m Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs <- m
	return nil
}

func (s *fakeSink) SendAudio(ctx context.Context, pcm []byte) error {
	s.audio <- pcm
	return nil
}

func (s *fakeSink) next(t *testing.T) Message {
	t.Helper()
	select {
	case m := <-s.msgs:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message")
		return Message{}
	}
}

func (s *fakeSink) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case m := <-s.msgs:
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(d):
	}
}

// fakeBatch answers with a fixed text, or with respond when set.
type fakeBatch struct {
	mu      sync.Mutex
	lengths []int
	text    string
	lang    string
	err     error
	respond func(samples []float32) string
}

func (f *fakeBatch) Transcribe(ctx context.Context, samples []float32) (stt.Transcription, error) {
	f.mu.Lock()
	f.lengths = append(f.lengths, len(samples))
	f.mu.Unlock()
	if f.err != nil {
		return stt.Transcription{}, f.err
	}
	text := f.text
	if f.respond != nil {
		text = f.respond(samples)
	}
	return stt.Transcription{Text: text, Language: f.lang}, nil
}

func (f *fakeBatch) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.lengths...)
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	fn    func(text string) (string, error)
}

func (f *fakeTranslator) Translate(ctx context.Context, text, targetLang, sourceLang string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(text)
}

var errBackend = errors.New("backend unavailable")

// runSession starts s in the background and returns the chunk channel and
// a function that closes it and waits for Run's result.
func runSession(t *testing.T, s *Session) (chan<- Chunk, func() error) {
	t.Helper()
	chunks := make(chan Chunk, 1024)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), chunks) }()

	return chunks, func() error {
		close(chunks)
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatal("session did not stop")
			return nil
		}
	}
}

func feed(chunks chan<- Chunk, cs []Chunk) {
	for _, c := range cs {
		chunks <- c
	}
}
