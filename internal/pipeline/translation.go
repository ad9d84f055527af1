package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
	"github.com/lukasbauer/livescribe/internal/translate"
)

// Translation is a final line together with its rendering in the target
// language. Translated falls back to Text when the backend fails.
// Partial entries carry a hypothesis that only rides the ordering gate.
type Translation struct {
	Index      int
	Text       string
	Language   string
	Words      []stt.Word
	Translated string
	Failed     bool
	Partial    bool
}

// TranslationDispatcher translates final lines on a shared pool and releases
// them in the order they were submitted. Failures never surface as errors.
type TranslationDispatcher struct {
	d          *Dispatcher[Translation]
	translator translate.Translator
	target     string
	logger     *log.Logger
	metrics    *metrics.Metrics
}

func NewTranslationDispatcher(tr translate.Translator, target string, pool *Pool, timeout time.Duration, logger *log.Logger, m *metrics.Metrics) *TranslationDispatcher {
	return &TranslationDispatcher{
		// Finals arrive at most once per record timeout; the backlog is unbounded.
		d:          NewDispatcher[Translation](pool, pool.Size(), 0, timeout),
		translator: tr,
		target:     target,
		logger:     logger,
		metrics:    m,
	}
}

// Submit queues line i for translation from sourceLang. It never blocks.
func (t *TranslationDispatcher) Submit(i int, text, sourceLang string, words []stt.Word) {
	t.d.Submit(func(ctx context.Context) (Translation, error) {
		out := Translation{Index: i, Text: text, Language: sourceLang, Words: words, Translated: text}
		if sameLanguage(sourceLang, t.target) {
			return out, nil
		}

		start := time.Now()
		translated, err := t.translator.Translate(ctx, text, t.target, sourceLang)
		t.metrics.TranslationDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			t.logger.Printf("pipeline: translation of line %d failed, using source text: %v", i, err)
			t.metrics.TranslationFailures.Inc()
			out.Failed = true
			return out, nil
		}
		out.Translated = translated
		return out, nil
	})
}

// Pass queues a partial hypothesis behind the lines already submitted
// without translating it.
func (t *TranslationDispatcher) Pass(text string) {
	t.d.Submit(func(context.Context) (Translation, error) {
		return Translation{Index: -1, Text: text, Translated: text, Partial: true}, nil
	})
}

// Run drives the underlying dispatcher until ctx is done.
func (t *TranslationDispatcher) Run(ctx context.Context) { t.d.Run(ctx) }

// Results yields translations in submission order.
func (t *TranslationDispatcher) Results() <-chan Result[Translation] { return t.d.Results() }

func sameLanguage(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
