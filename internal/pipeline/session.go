package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/eventlog"
	"github.com/lukasbauer/livescribe/internal/filter"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/store"
	"github.com/lukasbauer/livescribe/internal/stt"
	"github.com/lukasbauer/livescribe/internal/translate"
	"golang.org/x/sync/errgroup"
)

// ErrRecognition marks a session that ended because the acoustic model failed.
var ErrRecognition = errors.New("recognition failed")

// Sink receives a session's outbound traffic. Calls come from the session
// goroutine only.
type Sink interface {
	SendMessage(ctx context.Context, m Message) error
	SendAudio(ctx context.Context, pcm []byte) error
}

// Config holds the per-session tunables shared by every session.
type Config struct {
	Format             audio.Format
	RecordTimeout      time.Duration
	PhraseTimeout      time.Duration
	SilenceRMS         float64
	SessionInflight    int
	QueueDepth         int
	InferenceTimeout   time.Duration
	TranslationTimeout time.Duration
	TargetLanguage     string
	Echo               bool
}

// Deps are the process-wide collaborators. Exactly one of Batch and
// Streaming must be set. A nil Translator disables translation.
type Deps struct {
	Coefficients    filter.Coefficients
	Batch           stt.Batch
	Streaming       stt.Streaming
	Translator      translate.Translator
	RecognitionPool *Pool
	TranslationPool *Pool
	Store           *store.Store
	Events          *eventlog.Logger
	Metrics         *metrics.Metrics
	Logger          *log.Logger
}

// Engine builds sessions around the shared collaborators.
type Engine struct {
	cfg  Config
	deps Deps
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if (deps.Batch == nil) == (deps.Streaming == nil) {
		return nil, errors.New("pipeline: exactly one of batch or streaming recognizer is required")
	}
	if cfg.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("pipeline: invalid sample rate %d", cfg.Format.SampleRate)
	}
	if deps.RecognitionPool == nil {
		deps.RecognitionPool = NewPool(1)
	}
	if deps.TranslationPool == nil {
		deps.TranslationPool = NewPool(1)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Engine{cfg: cfg, deps: deps}, nil
}

// TranslationEnabled reports whether finals carry translations.
func (e *Engine) TranslationEnabled() bool {
	return e.deps.Translator != nil && e.cfg.TargetLanguage != ""
}

// NewSession prepares a session. Streaming recognizers open their stream
// here, so a failure means the model is unavailable.
func (e *Engine) NewSession(ctx context.Context, id, subject string, sink Sink) (*Session, error) {
	var rec Recognizer
	if e.deps.Streaming != nil {
		stream, err := e.deps.Streaming.NewStream(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: open stream: %w", ErrRecognition, err)
		}
		rec = NewStreaming(stream, e.deps.Metrics)
	} else {
		seg := NewSegmenter(e.cfg.Format.SampleRate, e.cfg.RecordTimeout, e.cfg.PhraseTimeout)
		rec = NewBatch(e.deps.Batch, seg, e.cfg.SilenceRMS, e.deps.Metrics)
	}

	inflight := e.cfg.SessionInflight
	if !rec.Concurrent() {
		inflight = 1
	}

	s := &Session{
		id:        id,
		subject:   subject,
		cfg:       e.cfg,
		deps:      e.deps,
		sink:      sink,
		stage:     filter.NewStage(e.deps.Coefficients),
		rec:       rec,
		recD:      NewDispatcher[stt.Event](e.deps.RecognitionPool, inflight, e.cfg.QueueDepth, e.cfg.InferenceTimeout),
		startedAt: time.Now(),
	}
	if e.TranslationEnabled() {
		s.trD = NewTranslationDispatcher(e.deps.Translator, e.cfg.TargetLanguage,
			e.deps.TranslationPool, e.cfg.TranslationTimeout, e.deps.Logger, e.deps.Metrics)
	}
	return s, nil
}

// Session is the per-connection pipeline. Run owns all mutable state except
// the counters read by Stats.
type Session struct {
	id      string
	subject string
	cfg     Config
	deps    Deps
	sink    Sink

	stage  *filter.Stage
	rec    Recognizer
	recD   *Dispatcher[stt.Event]
	trD    *TranslationDispatcher
	ledger Ledger

	// results owed by trD; partials queue behind them while non-zero
	trPending int

	startedAt   time.Time
	chunks      atomic.Int64
	rejected    atomic.Int64
	submitted   atomic.Int64
	dropped     atomic.Int64
	finals      atomic.Int64
	buffered    atomic.Int64 // nanoseconds
	lastChunkAt atomic.Int64 // unix nanoseconds
}

func (s *Session) ID() string { return s.id }

// Stats is a point-in-time view of a session.
type Stats struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	LastChunkAt *time.Time `json:"last_chunk_at,omitempty"`
	Chunks      int64      `json:"chunks"`
	Rejected    int64      `json:"rejected"`
	Submitted   int64      `json:"submitted"`
	Dropped     int64      `json:"dropped"`
	Finals      int64      `json:"finals"`
	BufferedMs  int64      `json:"buffered_ms"`
	Idle        bool       `json:"idle"`
}

// Stats may be called from any goroutine.
func (s *Session) Stats(now time.Time) Stats {
	st := Stats{
		ID:         s.id,
		Subject:    s.subject,
		StartedAt:  s.startedAt,
		Chunks:     s.chunks.Load(),
		Rejected:   s.rejected.Load(),
		Submitted:  s.submitted.Load(),
		Dropped:    s.dropped.Load(),
		Finals:     s.finals.Load(),
		BufferedMs: time.Duration(s.buffered.Load()).Milliseconds(),
	}
	if ns := s.lastChunkAt.Load(); ns != 0 {
		last := time.Unix(0, ns)
		st.LastChunkAt = &last
		st.Idle = idleSince(last, now, s.cfg.PhraseTimeout)
	}
	return st
}

// Run consumes chunks until the channel closes or ctx is done, and returns
// nil in both cases. A recognition failure ends the session with an error
// wrapping ErrRecognition; a Sink failure is returned as is.
func (s *Session) Run(ctx context.Context, chunks <-chan Chunk) error {
	s.begin()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.recD.Run(gctx)
		return nil
	})
	if s.trD != nil {
		g.Go(func() error {
			s.trD.Run(gctx)
			return nil
		})
	}

	err := s.loop(gctx, chunks)
	cancel()
	_ = g.Wait()

	if cerr := s.rec.Close(); cerr != nil {
		s.deps.Logger.Printf("pipeline: session %s recognizer close: %v", s.id, cerr)
	}
	s.end(err)
	return err
}

func (s *Session) begin() {
	s.deps.Metrics.SessionsTotal.Inc()
	s.deps.Metrics.ActiveSessions.Inc()
	f := s.cfg.Format
	s.deps.Events.LogAsync(s.id, eventlog.EventSessionStarted, map[string]any{
		"sample_rate": f.SampleRate,
		"channels":    f.Channels,
		"translation": s.trD != nil,
	})
	if s.deps.Store.Enabled() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.deps.Store.CreateSession(ctx, store.Session{
				ID:         s.id,
				Subject:    s.subject,
				SampleRate: f.SampleRate,
				Channels:   f.Channels,
				StartedAt:  s.startedAt,
			}); err != nil {
				s.deps.Logger.Printf("pipeline: session %s create record: %v", s.id, err)
			}
		}()
	}
}

func (s *Session) end(err error) {
	s.deps.Metrics.ActiveSessions.Dec()
	reason := "client_closed"
	switch {
	case errors.Is(err, ErrRecognition):
		reason = "recognition_error"
	case err != nil:
		reason = "transport_error"
	}
	finals := int(s.finals.Load())
	s.deps.Events.LogAsync(s.id, eventlog.EventSessionEnded, map[string]any{
		"reason":      reason,
		"chunks":      s.chunks.Load(),
		"finals":      finals,
		"duration_ms": time.Since(s.startedAt).Milliseconds(),
	})
	if s.deps.Store.Enabled() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.deps.Store.EndSession(ctx, s.id, reason, finals, time.Now()); err != nil {
				s.deps.Logger.Printf("pipeline: session %s end record: %v", s.id, err)
			}
		}()
	}
}

func (s *Session) loop(ctx context.Context, chunks <-chan Chunk) error {
	var translations <-chan Result[Translation]
	if s.trD != nil {
		translations = s.trD.Results()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-chunks:
			if !ok {
				return nil
			}
			if err := s.ingest(ctx, c); err != nil {
				return err
			}
		case r := <-s.recD.Results():
			if err := s.recognized(ctx, r); err != nil {
				return err
			}
		case r := <-translations:
			if err := s.translated(ctx, r); err != nil {
				return err
			}
		}
	}
}

func (s *Session) ingest(ctx context.Context, c Chunk) error {
	s.chunks.Add(1)
	s.deps.Metrics.ChunksReceived.Inc()

	if err := s.cfg.Format.Validate(c.Data); err != nil {
		s.rejected.Add(1)
		s.deps.Metrics.ChunksRejected.Inc()
		s.deps.Logger.Printf("pipeline: session %s dropped chunk of %d bytes: %v", s.id, len(c.Data), err)
		return nil
	}
	s.lastChunkAt.Store(c.At.UnixNano())

	if s.cfg.Echo {
		if err := s.sink.SendAudio(ctx, c.Data); err != nil {
			return err
		}
	}

	mono := audio.Downmix(c.Data, s.cfg.Format.Channels)
	filtered, err := s.stage.Process(mono)
	if err != nil {
		// Validate already guarantees whole samples.
		return fmt.Errorf("pipeline: filter: %w", err)
	}

	task, ok := s.rec.Feed(filtered, c.At)
	s.buffered.Store(int64(s.rec.Buffered()))
	if !ok {
		return nil
	}
	if !s.recD.Submit(task) {
		s.dropped.Add(1)
		s.deps.Metrics.RecognitionDropped.Inc()
		s.deps.Logger.Printf("pipeline: session %s recognition backlog full, dropping task", s.id)
		s.deps.Events.LogAsync(s.id, eventlog.EventSegmentDropped, map[string]any{"pending": s.recD.Pending()})
		return nil
	}
	n := s.submitted.Add(1)
	s.deps.Metrics.RecognitionTasks.Inc()
	if s.rec.Concurrent() {
		// Streaming sessions submit every chunk; only segments are worth an event.
		s.deps.Events.LogAsync(s.id, eventlog.EventSegmentSubmitted, map[string]any{"seq": n - 1})
	}
	return nil
}

func (s *Session) recognized(ctx context.Context, r Result[stt.Event]) error {
	if r.Err != nil {
		if ctx.Err() != nil && errors.Is(r.Err, context.Canceled) {
			// Pool wait abandoned because the session is ending.
			return nil
		}
		s.deps.Logger.Printf("pipeline: session %s recognition task %d failed: %v", s.id, r.Seq, r.Err)
		s.deps.Events.LogAsync(s.id, eventlog.EventRecognitionError, map[string]any{
			"seq":   r.Seq,
			"error": r.Err.Error(),
		})
		return fmt.Errorf("%w: task %d: %w", ErrRecognition, r.Seq, r.Err)
	}

	ev := r.Value
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return nil
	}

	switch ev.Kind {
	case stt.EventPartial:
		if s.trPending > 0 {
			s.trD.Pass(text)
			s.trPending++
			return nil
		}
		return s.send(ctx, Message{Type: MessagePartial, Text: text})
	case stt.EventFinal:
		i := s.ledger.Append(text, ev.Language)
		if s.trD != nil {
			s.trD.Submit(i, text, ev.Language, ev.Words)
			s.trPending++
			return nil
		}
		return s.emitFinal(ctx, i, ev.Words, "", false)
	}
	return nil
}

func (s *Session) translated(ctx context.Context, r Result[Translation]) error {
	s.trPending--
	if r.Err != nil {
		// Only a cancelled pool wait lands here, and that means the session is ending.
		return nil
	}
	t := r.Value
	if t.Partial {
		return s.send(ctx, Message{Type: MessagePartial, Text: t.Text})
	}
	if t.Failed {
		s.deps.Events.LogAsync(s.id, eventlog.EventTranslationFailed, map[string]any{"index": t.Index})
	}
	if err := s.ledger.AppendTranslation(t.Index, t.Translated); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return s.emitFinal(ctx, t.Index, t.Words, t.Translated, true)
}

func (s *Session) emitFinal(ctx context.Context, i int, words []stt.Word, translation string, translated bool) error {
	e := s.ledger.Entry(i)
	msg := Message{
		Type:         MessageFinal,
		Text:         e.Text,
		DetectedLang: e.Language,
		Transcript:   s.ledger.TranscriptThrough(i),
		Words:        words,
	}
	if translated {
		msg.Translation = translation
		msg.TranslationAll = s.ledger.TranslationsThrough(i)
	}
	if err := s.send(ctx, msg); err != nil {
		return err
	}

	s.finals.Add(1)
	s.deps.Events.LogAsync(s.id, eventlog.EventFinalEmitted, map[string]any{
		"index":  i,
		"length": len(e.Text),
	})
	s.deps.Store.InsertEntryAsync(store.Entry{
		SessionID:   s.id,
		Seq:         i,
		Text:        e.Text,
		Language:    e.Language,
		Translation: translation,
	}, func(err error) {
		s.deps.Logger.Printf("pipeline: session %s persist entry %d: %v", s.id, i, err)
	})
	return nil
}

func (s *Session) send(ctx context.Context, m Message) error {
	if err := s.sink.SendMessage(ctx, m); err != nil {
		return fmt.Errorf("pipeline: send %s: %w", m.Type, err)
	}
	s.deps.Metrics.MessagesSent.WithLabelValues(string(m.Type)).Inc()
	return nil
}
