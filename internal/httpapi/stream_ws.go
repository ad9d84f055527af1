package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lukasbauer/livescribe/internal/notifications"
	"github.com/lukasbauer/livescribe/internal/pipeline"
	"github.com/lukasbauer/livescribe/internal/recording"
	"golang.org/x/sync/errgroup"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var errUnsupportedFrame = errors.New("stream_ws: non-binary frame")

// maxFrameBytes caps a single inbound audio frame (about 10s of 48kHz stereo).
const maxFrameBytes = 2 << 20

// wsSink serializes all writes to one websocket connection.
type wsSink struct {
	conn         *websocket.Conn
	connMu       sync.Mutex
	writeTimeout time.Duration
	closed       bool
}

func (s *wsSink) SendMessage(ctx context.Context, m pipeline.Message) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(m)
}

func (s *wsSink) SendAudio(ctx context.Context, pcm []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// close sends a close frame with code and tears the connection down.
// Safe to call more than once.
func (s *wsSink) close(code int, text string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	s.conn.Close()
}

// streamSession pumps one client's audio into a pipeline session
type streamSession struct {
	id          string
	conn        *websocket.Conn
	sink        *wsSink
	pipe        *pipeline.Session
	recorder    *recording.Recorder
	alerts      *notifications.Discord
	logger      *log.Logger
	idleTimeout time.Duration
	req         *http.Request

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	if !r.sessions.Add() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	id := uuid.NewString()
	tracked := false
	defer func() {
		if tracked {
			r.sessions.Done(id)
		} else {
			r.sessions.Done("")
		}
	}()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("stream_ws: upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	sink := &wsSink{conn: conn, writeTimeout: r.cfg.WriteTimeout}

	pipe, err := r.engine.NewSession(ctx, id, subjectFrom(req.Context()), sink)
	if err != nil {
		r.logger.Printf("stream_ws: session %s setup failed: %v", id, err)
		captureError(req, err, "stream_ws: session setup")
		r.metrics.SessionErrors.WithLabelValues("setup").Inc()
		sink.close(websocket.CloseInternalServerErr, "recognizer unavailable")
		return
	}

	rec, err := recording.Open(r.cfg.RecordingDir, id)
	if err != nil {
		// Recording is best effort.
		r.logger.Printf("stream_ws: session %s recording disabled: %v", id, err)
		rec = nil
	}

	r.sessions.Track(pipe)
	tracked = true

	s := &streamSession{
		id:          id,
		conn:        conn,
		sink:        sink,
		pipe:        pipe,
		recorder:    rec,
		alerts:      r.cfg.Alerts,
		logger:      r.logger,
		idleTimeout: r.cfg.IdleTimeout,
		req:         req,
		ctx:         ctx,
		cancel:      cancel,
	}

	r.logger.Printf("stream_ws: session %s connected from %s", id, req.RemoteAddr)
	err = s.run()
	switch {
	case errors.Is(err, pipeline.ErrRecognition):
		r.metrics.SessionErrors.WithLabelValues("recognition").Inc()
	case err != nil:
		r.metrics.SessionErrors.WithLabelValues("transport").Inc()
	}
}

func (s *streamSession) run() error {
	defer s.cleanup()

	chunks := make(chan pipeline.Chunk, 64)
	g, ctx := errgroup.WithContext(s.ctx)

	g.Go(func() error {
		defer close(chunks)
		return s.readLoop(ctx, chunks)
	})
	g.Go(func() error {
		err := s.pipe.Run(ctx, chunks)
		// Closing the socket also unblocks readLoop.
		s.finish(err)
		return err
	})

	return g.Wait()
}

// readLoop forwards binary frames until the client goes away. Any other
// frame type is a protocol violation and ends the session with 1003.
func (s *streamSession) readLoop(ctx context.Context, chunks chan<- pipeline.Chunk) error {
	for {
		if s.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("stream_ws: connection closed for session %s", s.id)
			} else if ctx.Err() == nil {
				s.logger.Printf("stream_ws: read error for session %s: %v", s.id, err)
			}
			return nil
		}
		if mt != websocket.BinaryMessage {
			s.logger.Printf("stream_ws: session %s sent a non-binary frame, closing", s.id)
			s.sink.close(websocket.CloseUnsupportedData, "binary PCM frames only")
			return errUnsupportedFrame
		}

		if _, err := s.recorder.Write(data); err != nil {
			s.logger.Printf("stream_ws: session %s recording write failed: %v", s.id, err)
		}

		select {
		case chunks <- pipeline.Chunk{Data: data, At: time.Now()}:
		case <-ctx.Done():
			return nil
		}
	}
}

// finish closes the connection with a code matching how the session ended.
func (s *streamSession) finish(err error) {
	switch {
	case err == nil:
		s.sink.close(websocket.CloseNormalClosure, "")
	case errors.Is(err, pipeline.ErrRecognition):
		s.logger.Printf("stream_ws: session %s failed: %v", s.id, err)
		captureError(s.req, err, "stream_ws: recognition failed")
		s.alerts.NotifySessionFailed(s.req.Context(), s.id, err)
		s.sink.close(websocket.CloseInternalServerErr, "recognition failed")
	default:
		s.logger.Printf("stream_ws: session %s transport error: %v", s.id, err)
		s.sink.close(websocket.CloseInternalServerErr, "")
	}
}

func (s *streamSession) cleanup() {
	s.cancel()
	s.sink.close(websocket.CloseNormalClosure, "")

	if err := s.recorder.Close(); err != nil {
		s.logger.Printf("stream_ws: session %s recording close: %v", s.id, err)
	}

	st := s.pipe.Stats(time.Now())
	s.logger.Printf("stream_ws: session %s cleaned up (chunks=%d finals=%d dropped=%d)", s.id, st.Chunks, st.Finals, st.Dropped)
}
