package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()

	a.ChunksReceived.Inc()
	a.MessagesSent.WithLabelValues("final").Inc()
	b.ChunksReceived.Add(3)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), "livescribe_chunks_received_total 1") {
		t.Errorf("expected chunk counter of 1 in output:\n%s", body)
	}
	if !strings.Contains(string(body), `livescribe_messages_sent_total{type="final"} 1`) {
		t.Error("expected labelled message counter in output")
	}
}
