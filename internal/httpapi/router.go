package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/notifications"
	"github.com/lukasbauer/livescribe/internal/pipeline"
	"github.com/lukasbauer/livescribe/internal/store"
)

type RouterConfig struct {
	// JWT check on stream and session endpoints; empty disables it
	JWTSecret string

	// Transport timeouts
	IdleTimeout  time.Duration // read deadline between inbound frames
	WriteTimeout time.Duration

	// Raw inbound audio is appended to <dir>/<session>.raw when set
	RecordingDir string

	// Operator alerts on recognition failures; nil disables them
	Alerts *notifications.Discord
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	engine   *pipeline.Engine
	store    *store.Store
	metrics  *metrics.Metrics
	sessions *SessionRegistry
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, engine *pipeline.Engine, s *store.Store, m *metrics.Metrics, sessions *SessionRegistry) http.Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		store:    s,
		metrics:  m,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.mux.Handle("GET /metrics", r.metrics.Handler())

	// Audio stream
	r.mux.HandleFunc("GET /ws", r.withAuth(r.handleStreamWS))

	// Session inspection
	r.mux.HandleFunc("GET /sessions", r.withAuth(r.handleListSessions))
	r.mux.HandleFunc("GET /sessions/{id}/transcript", r.withAuth(r.handleGetTranscript))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   r.sessions.ActiveCount(),
		"draining": r.sessions.IsDraining(),
		"sessions": r.sessions.Snapshot(time.Now()),
	})
}

func (r *Router) handleGetTranscript(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	sess, err := r.store.GetSession(req.Context(), id)
	if errors.Is(err, store.ErrDisabled) {
		http.Error(w, `{"error": "persistence disabled"}`, http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		r.logger.Printf("sessions: get %s: %v", id, err)
		captureError(req, err, "sessions: get session")
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return
	}

	entries, err := r.store.ListEntries(req.Context(), id)
	if err != nil {
		r.logger.Printf("sessions: list entries %s: %v", id, err)
		captureError(req, err, "sessions: list entries")
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"entries": entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
