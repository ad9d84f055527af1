package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukasbauer/livescribe/internal/audio"
)

// VoskClient implements Streaming against a vosk-server style websocket:
// binary PCM frames in, one JSON reply ({"partial": ...} or {"text": ..., "result": [...]}) per frame out.
type VoskClient struct {
	url        string
	sampleRate int
	language   string
	words      bool
	dialer     *websocket.Dialer
}

// VoskConfig holds configuration for the Vosk client.
type VoskConfig struct {
	URL        string // e.g. "ws://localhost:2700"
	SampleRate int
	Language   string // the server's model language, attached to every event
	Words      bool   // request word-level alignment in final results
}

// voskResponse represents a vosk-server reply.
type voskResponse struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
	Result  []Word  `json:"result"`
}

type voskConfigMessage struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
		Words      int `json:"words"`
	} `json:"config"`
}

// NewVoskClient creates a streaming recognizer factory.
func NewVoskClient(cfg VoskConfig) *VoskClient {
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &VoskClient{
		url:        cfg.URL,
		sampleRate: sampleRate,
		language:   cfg.Language,
		words:      cfg.Words,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// NewStream opens a dedicated recognizer connection for one session.
func (c *VoskClient) NewStream(ctx context.Context) (Stream, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vosk: %w", err)
	}

	var msg voskConfigMessage
	msg.Config.SampleRate = c.sampleRate
	if c.words {
		msg.Config.Words = 1
	}
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure vosk stream: %w", err)
	}

	return &voskStream{conn: conn, language: c.language}, nil
}

type voskStream struct {
	conn      *websocket.Conn
	language  string
	mu        sync.Mutex
	closeOnce sync.Once
}

// Feed sends one chunk and waits for the server's reply to it.
func (s *voskStream) Feed(ctx context.Context, pcm []int16) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio.Bytes(pcm)); err != nil {
		return Event{}, fmt.Errorf("vosk: write: %w", err)
	}
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return Event{}, fmt.Errorf("vosk: read: %w", err)
	}
	return s.parse(msg)
}

func (s *voskStream) parse(msg []byte) (Event, error) {
	var resp voskResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return Event{}, fmt.Errorf("vosk: failed to parse response: %w", err)
	}
	switch {
	case resp.Text != nil:
		return Event{Kind: EventFinal, Text: *resp.Text, Language: s.language, Words: resp.Result}, nil
	case resp.Partial != nil:
		return Event{Kind: EventPartial, Text: *resp.Partial, Language: s.language}, nil
	default:
		return Event{Kind: EventNone}, nil
	}
}

// Close tells the server the stream is over and closes the connection.
func (s *voskStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}
