package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeVosk replies with a partial for every frame and a final every third frame.
func fakeVosk(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cfg voskConfigMessage
		if err := conn.ReadJSON(&cfg); err != nil {
			return
		}
		if cfg.Config.SampleRate != 16000 {
			t.Errorf("config sample_rate = %d, want 16000", cfg.Config.SampleRate)
		}

		frames := 0
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage && strings.Contains(string(msg), "eof") {
				return
			}
			frames++
			var reply string
			switch {
			case frames%3 == 0:
				reply = `{"result":[{"conf":0.9,"end":0.5,"start":0.1,"word":"hello"}],"text":"hello"}`
			case frames == 1:
				reply = `{"status":"ok"}`
			default:
				reply = `{"partial":"hel"}`
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVoskStream_Feed(t *testing.T) {
	srv := fakeVosk(t)
	client := NewVoskClient(VoskConfig{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		SampleRate: 16000,
		Language:   "en",
		Words:      true,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.NewStream(ctx)
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	defer stream.Close()

	wantKinds := []EventKind{EventNone, EventPartial, EventFinal}
	for i, want := range wantKinds {
		ev, err := stream.Feed(ctx, make([]int16, 160))
		if err != nil {
			t.Fatalf("Feed(%d) error = %v", i, err)
		}
		if ev.Kind != want {
			t.Fatalf("Feed(%d) kind = %v, want %v", i, ev.Kind, want)
		}
		if ev.Kind == EventPartial && ev.Text != "hel" {
			t.Errorf("partial text = %q, want %q", ev.Text, "hel")
		}
		if ev.Kind == EventFinal {
			if ev.Text != "hello" || ev.Language != "en" {
				t.Errorf("final = %+v", ev)
			}
			if len(ev.Words) != 1 || ev.Words[0].Word != "hello" || ev.Words[0].Conf != 0.9 {
				t.Errorf("words = %+v", ev.Words)
			}
		}
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestVoskClient_DialFailure(t *testing.T) {
	client := NewVoskClient(VoskConfig{URL: "ws://127.0.0.1:1"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.NewStream(ctx); err == nil {
		t.Fatal("NewStream() should fail when nothing is listening")
	}
}
