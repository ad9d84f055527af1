package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSameLanguage(t *testing.T) {
	tests := []struct {
		src, target string
		want        bool
	}{
		{"en", "en", true},
		{"EN", "en", true},
		{"en", "cs", false},
		{"", "en", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := sameLanguage(tt.src, tt.target); got != tt.want {
			t.Errorf("sameLanguage(%q, %q) = %v, want %v", tt.src, tt.target, got, tt.want)
		}
	}
}

func TestTranslationDispatcherOrderAndFallback(t *testing.T) {
	tr := &fakeTranslator{fn: func(text string) (string, error) {
		if text == "bad" {
			return "", errBackend
		}
		// Earlier lines take longer so completions arrive out of order.
		if text == "one" {
			time.Sleep(50 * time.Millisecond)
		}
		return strings.ToUpper(text), nil
	}}
	m := metrics.New()
	td := NewTranslationDispatcher(tr, "cs", NewPool(3), time.Second, discardLogger(), m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go td.Run(ctx)

	td.Submit(0, "one", "en", nil)
	td.Submit(1, "bad", "en", nil)
	td.Submit(2, "three", "en", nil)
	td.Submit(3, "ahoj", "cs", nil)

	want := []struct {
		translated string
		failed     bool
	}{
		{"ONE", false},
		{"bad", true},
		{"THREE", false},
		{"ahoj", false},
	}
	for i, w := range want {
		select {
		case r := <-td.Results():
			if r.Err != nil {
				t.Fatalf("result %d: unexpected error %v", i, r.Err)
			}
			if r.Value.Index != i || r.Value.Translated != w.translated || r.Value.Failed != w.failed {
				t.Errorf("result %d = %+v, want %q failed=%v", i, r.Value, w.translated, w.failed)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %d", i)
		}
	}

	if got := testutil.ToFloat64(m.TranslationFailures); got != 1 {
		t.Errorf("translation failures = %v, want 1", got)
	}
	tr.mu.Lock()
	calls := tr.calls
	tr.mu.Unlock()
	if calls != 3 {
		t.Errorf("translator calls = %d, want 3 (same-language line skipped)", calls)
	}
}
