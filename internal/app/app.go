package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/eventlog"
	"github.com/lukasbauer/livescribe/internal/filter"
	"github.com/lukasbauer/livescribe/internal/httpapi"
	"github.com/lukasbauer/livescribe/internal/jobs"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/notifications"
	"github.com/lukasbauer/livescribe/internal/pipeline"
	"github.com/lukasbauer/livescribe/internal/store"
	"github.com/lukasbauer/livescribe/internal/stt"
	"github.com/lukasbauer/livescribe/internal/translate"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool // nil when DATABASE_URL is unset
	store    *store.Store
	eventLog *eventlog.Logger
	metrics  *metrics.Metrics
	engine   *pipeline.Engine
	sessions *httpapi.SessionRegistry
	discord  *notifications.Discord
	jobs     []*jobs.RetentionJob
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Printf("DATABASE_URL not set, transcripts will not be persisted")
	}

	// Migrations are applied externally (psql -f migrations/*.sql).
	s := store.New(db)
	el := eventlog.New(db)
	m := metrics.New()

	deps := pipeline.Deps{
		RecognitionPool: pipeline.NewPool(cfg.RecognitionWorkers),
		TranslationPool: pipeline.NewPool(cfg.TranslationWorkers),
		Store:           s,
		Events:          el,
		Metrics:         m,
		Logger:          logger,
	}

	if cfg.FilterEnabled {
		coeffs, err := filter.Design(filter.Params{
			SampleRate: cfg.SampleRate,
			CutoffHz:   cfg.FilterCutoffHz,
			Order:      cfg.FilterOrder,
		})
		if err != nil {
			closeDB(db)
			return nil, err
		}
		deps.Coefficients = coeffs
	}

	switch cfg.Recognizer {
	case "whisper":
		deps.Batch = stt.NewWhisperClient(stt.WhisperConfig{
			APIKey:     cfg.WhisperAPIKey,
			BaseURL:    cfg.WhisperBaseURL,
			Model:      cfg.Model,
			Language:   cfg.SourceLanguage,
			SampleRate: cfg.SampleRate,
		})
	case "vosk":
		deps.Streaming = stt.NewVoskClient(stt.VoskConfig{
			URL:        cfg.VoskURL,
			SampleRate: cfg.SampleRate,
			Language:   cfg.SourceLanguage,
			Words:      true,
		})
	default:
		closeDB(db)
		return nil, fmt.Errorf("unknown recognizer %q", cfg.Recognizer)
	}

	if cfg.TargetLanguage != "" {
		deps.Translator = translate.NewOpenAITranslator(translate.OpenAIConfig{
			APIKey:  cfg.TranslateAPIKey,
			BaseURL: cfg.TranslateBaseURL,
			Model:   cfg.TranslateModel,
		})
	}

	engine, err := pipeline.NewEngine(pipeline.Config{
		Format: audio.Format{
			SampleRate:  cfg.SampleRate,
			Channels:    cfg.Channels,
			SampleWidth: cfg.SampleWidth,
		},
		RecordTimeout:      cfg.RecordTimeout(),
		PhraseTimeout:      cfg.PhraseTimeout(),
		SilenceRMS:         cfg.SilenceRMSThreshold,
		SessionInflight:    cfg.SessionInflight,
		QueueDepth:         cfg.QueueDepth,
		InferenceTimeout:   cfg.InferenceTimeout(),
		TranslationTimeout: cfg.TranslationTimeout(),
		TargetLanguage:     cfg.TargetLanguage,
		Echo:               cfg.EchoAudio,
	}, deps)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	logger.Printf("recognizer=%s model=%s workers=%d inflight=%d translation=%v",
		cfg.Recognizer, cfg.Model, cfg.RecognitionWorkers, cfg.SessionInflight, engine.TranslationEnabled())

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    s,
		eventLog: el,
		metrics:  m,
		engine:   engine,
		sessions: httpapi.NewSessionRegistry(),
		discord:  notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
	}, nil
}

func closeDB(db *pgxpool.Pool) {
	if db != nil {
		db.Close()
	}
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret:    a.cfg.JWTSecret,
		IdleTimeout:  a.cfg.IdleTimeout(),
		RecordingDir: a.cfg.RecordingDir,
		Alerts:       a.discord,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.engine, a.store, a.metrics, a.sessions)
}

// Drain stops accepting sessions and waits for active ones to finish
// or for ctx to expire.
func (a *App) Drain(ctx context.Context) error {
	a.sessions.StartDraining()
	a.logger.Printf("draining %d active sessions", a.sessions.ActiveCount())

	done := make(chan struct{})
	go func() {
		a.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: %d sessions still active: %w", a.sessions.ActiveCount(), ctx.Err())
	}
}

// StartJobs launches background maintenance. Retention needs a database.
func (a *App) StartJobs() {
	if a.cfg.RetentionDays > 0 && a.store.Enabled() {
		retention := time.Duration(a.cfg.RetentionDays) * 24 * time.Hour
		j := jobs.NewRetentionJob(a.store, a.discord, a.logger, retention, time.Hour)
		j.Start()
		a.jobs = append(a.jobs, j)
	}
}

func (a *App) Close() error {
	for _, j := range a.jobs {
		j.Stop()
	}
	a.jobs = nil
	closeDB(a.db)
	return nil
}
