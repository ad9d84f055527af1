package httpapi

import (
	"context"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/pipeline"
	"github.com/lukasbauer/livescribe/internal/store"
	"github.com/lukasbauer/livescribe/internal/stt"
)

const testRate = 16000

type fakeBatch struct {
	text string
	err  error
}

func (f *fakeBatch) Transcribe(ctx context.Context, samples []float32) (stt.Transcription, error) {
	if f.err != nil {
		return stt.Transcription{}, f.err
	}
	return stt.Transcription{Text: f.text, Language: "en"}, nil
}

type testServer struct {
	*httptest.Server
	sessions *SessionRegistry
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T, cfg RouterConfig, model stt.Batch, echo bool) *testServer {
	t.Helper()
	m := metrics.New()
	logger := log.New(io.Discard, "", 0)

	engine, err := pipeline.NewEngine(pipeline.Config{
		Format:           audio.Format{SampleRate: testRate, Channels: 1, SampleWidth: 2},
		RecordTimeout:    200 * time.Millisecond,
		PhraseTimeout:    3 * time.Second,
		SilenceRMS:       0.01,
		SessionInflight:  1,
		QueueDepth:       8,
		InferenceTimeout: time.Second,
		Echo:             echo,
	}, pipeline.Deps{Batch: model, Metrics: m, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}

	sessions := NewSessionRegistry()
	srv := httptest.NewServer(NewRouter(cfg, logger, engine, store.New(nil), m, sessions))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, sessions: sessions, metrics: m}
}

func (s *testServer) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (s *testServer) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// toneFrame returns 100ms of a 300Hz tone as PCM bytes.
func toneFrame() []byte {
	samples := make([]int16, testRate/10)
	for i := range samples {
		samples[i] = audio.ClampInt16(16000 * math.Sin(2*math.Pi*300*float64(i)/testRate))
	}
	return audio.Bytes(samples)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
