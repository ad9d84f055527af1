package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	DatabaseURL string `yaml:"database_url"`
	SentryDSN   string `yaml:"sentry_dsn"`
	LogLevel    string `yaml:"log_level"`

	// JWT check on /ws and /sessions; empty disables it
	JWTSecret string `yaml:"jwt_secret"`

	// Inbound audio format
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	SampleWidth     int `yaml:"sample_width"`
	ChunkIntervalMs int `yaml:"chunk_interval_ms"` // client hint, informational

	// Segmentation
	RecordTimeoutMs     int     `yaml:"record_timeout_ms"`
	PhraseTimeoutMs     int     `yaml:"phrase_timeout_ms"`
	IdleTimeoutMs       int     `yaml:"idle_timeout_ms"`
	SilenceRMSThreshold float64 `yaml:"silence_rms_threshold"`

	// Low-pass filter
	FilterEnabled  bool    `yaml:"filter_enabled"`
	FilterCutoffHz float64 `yaml:"filter_cutoff_hz"`
	FilterOrder    int     `yaml:"filter_order"`

	// Recognition
	Recognizer         string `yaml:"recognizer"` // "whisper" (batch) or "vosk" (streaming)
	Model              string `yaml:"model"`
	WhisperBaseURL     string `yaml:"whisper_base_url"`
	WhisperAPIKey      string `yaml:"whisper_api_key"`
	VoskURL            string `yaml:"vosk_url"`
	SourceLanguage     string `yaml:"source_language"`
	RecognitionWorkers int    `yaml:"recognition_workers"`
	SessionInflight    int    `yaml:"session_inflight"`
	QueueDepth         int    `yaml:"queue_depth"`
	InferenceTimeoutMs int    `yaml:"inference_timeout_ms"`

	// Translation; empty TargetLanguage disables it
	TargetLanguage       string `yaml:"target_language"`
	TranslateModel       string `yaml:"translate_model"`
	TranslateBaseURL     string `yaml:"translate_base_url"`
	TranslateAPIKey      string `yaml:"translate_api_key"`
	TranslationWorkers   int    `yaml:"translation_workers"`
	TranslationTimeoutMs int    `yaml:"translation_timeout_ms"`

	// Debugging aids
	EchoAudio    bool   `yaml:"echo_audio"`
	RecordingDir string `yaml:"recording_dir"`

	// Operations
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	RetentionDays     int    `yaml:"retention_days"` // 0 keeps transcripts forever
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		LogLevel: "info",

		SampleRate:      16000,
		Channels:        1,
		SampleWidth:     2,
		ChunkIntervalMs: 100,

		RecordTimeoutMs:     2000,
		PhraseTimeoutMs:     3000,
		IdleTimeoutMs:       60000,
		SilenceRMSThreshold: 0.01,

		FilterEnabled:  true,
		FilterCutoffHz: 4000,
		FilterOrder:    4,

		Recognizer:         "whisper",
		Model:              "whisper-1",
		RecognitionWorkers: 1,
		SessionInflight:    1,
		QueueDepth:         32,
		InferenceTimeoutMs: 30000,

		TranslateModel:       "gpt-4o-mini",
		TranslationWorkers:   4,
		TranslationTimeoutMs: 10000,
	}
}

// LoadConfig reads .env (if present), then the YAML file named by
// CONFIG_FILE (if set), then environment variables, each layer overriding the
// previous one.
func LoadConfig() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg = applyEnv(cfg)
	return cfg, cfg.Validate()
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c Config) Config {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.SentryDSN = getenv("SENTRY_DSN", c.SentryDSN)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getenv("JWT_SECRET", c.JWTSecret)

	c.SampleRate = getenvInt("SAMPLE_RATE", c.SampleRate)
	c.Channels = getenvInt("CHANNELS", c.Channels)
	c.SampleWidth = getenvInt("SAMPLE_WIDTH", c.SampleWidth)
	c.ChunkIntervalMs = getenvInt("CHUNK_INTERVAL_MS", c.ChunkIntervalMs)

	c.RecordTimeoutMs = getenvInt("RECORD_TIMEOUT_MS", c.RecordTimeoutMs)
	c.PhraseTimeoutMs = getenvInt("PHRASE_TIMEOUT_MS", c.PhraseTimeoutMs)
	c.IdleTimeoutMs = getenvInt("IDLE_TIMEOUT_MS", c.IdleTimeoutMs)
	c.SilenceRMSThreshold = getenvFloatClamped("SILENCE_RMS_THRESHOLD", c.SilenceRMSThreshold, 0, 1)

	c.FilterEnabled = getenvBool("FILTER_ENABLED", c.FilterEnabled)
	c.FilterCutoffHz = getenvFloat("FILTER_CUTOFF_HZ", c.FilterCutoffHz)
	c.FilterOrder = getenvIntClamped("FILTER_ORDER", c.FilterOrder, 2, 16)

	c.Recognizer = strings.ToLower(getenv("RECOGNIZER", c.Recognizer))
	c.Model = getenv("MODEL", c.Model)
	c.WhisperBaseURL = getenv("WHISPER_BASE_URL", c.WhisperBaseURL)
	c.WhisperAPIKey = getenv("WHISPER_API_KEY", getenv("OPENAI_API_KEY", c.WhisperAPIKey))
	c.VoskURL = getenv("VOSK_URL", c.VoskURL)
	c.SourceLanguage = getenv("SOURCE_LANGUAGE", c.SourceLanguage)
	c.RecognitionWorkers = getenvIntClamped("RECOGNITION_WORKERS", c.RecognitionWorkers, 1, 64)
	c.SessionInflight = getenvIntClamped("SESSION_INFLIGHT", c.SessionInflight, 1, 16)
	c.QueueDepth = getenvIntClamped("QUEUE_DEPTH", c.QueueDepth, 1, 1024)
	c.InferenceTimeoutMs = getenvInt("INFERENCE_TIMEOUT_MS", c.InferenceTimeoutMs)

	c.TargetLanguage = getenv("TARGET_LANGUAGE", c.TargetLanguage)
	c.TranslateModel = getenv("TRANSLATE_MODEL", c.TranslateModel)
	c.TranslateBaseURL = getenv("TRANSLATE_BASE_URL", c.TranslateBaseURL)
	c.TranslateAPIKey = getenv("TRANSLATE_API_KEY", getenv("OPENAI_API_KEY", c.TranslateAPIKey))
	c.TranslationWorkers = getenvIntClamped("TRANSLATION_WORKERS", c.TranslationWorkers, 1, 64)
	c.TranslationTimeoutMs = getenvInt("TRANSLATION_TIMEOUT_MS", c.TranslationTimeoutMs)

	c.EchoAudio = getenvBool("ECHO_AUDIO", c.EchoAudio)
	c.RecordingDir = getenv("RECORDING_DIR", c.RecordingDir)

	c.DiscordWebhookURL = getenv("DISCORD_WEBHOOK_URL", c.DiscordWebhookURL)
	c.RetentionDays = getenvIntClamped("RETENTION_DAYS", c.RetentionDays, 0, 3650)
	return c
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("SAMPLE_RATE must be positive (got %d)", c.SampleRate))
	}
	if c.Channels < 1 {
		errs = append(errs, fmt.Errorf("CHANNELS must be at least 1 (got %d)", c.Channels))
	}
	if c.SampleWidth != 2 {
		errs = append(errs, fmt.Errorf("SAMPLE_WIDTH must be 2 (got %d)", c.SampleWidth))
	}
	if c.RecordTimeoutMs <= 0 || c.PhraseTimeoutMs <= 0 {
		errs = append(errs, errors.New("RECORD_TIMEOUT_MS and PHRASE_TIMEOUT_MS must be positive"))
	}
	if c.IdleTimeoutMs < 0 {
		errs = append(errs, errors.New("IDLE_TIMEOUT_MS must not be negative"))
	}
	if c.InferenceTimeoutMs <= 0 || c.TranslationTimeoutMs <= 0 {
		errs = append(errs, errors.New("INFERENCE_TIMEOUT_MS and TRANSLATION_TIMEOUT_MS must be positive"))
	}
	if c.RecognitionWorkers < 1 || c.TranslationWorkers < 1 || c.SessionInflight < 1 || c.QueueDepth < 1 {
		errs = append(errs, errors.New("worker pools, SESSION_INFLIGHT and QUEUE_DEPTH must be at least 1"))
	}
	if c.FilterEnabled && (c.FilterCutoffHz <= 0 || c.FilterCutoffHz >= float64(c.SampleRate)/2) {
		errs = append(errs, fmt.Errorf("FILTER_CUTOFF_HZ must be between 0 and half the sample rate (got %g)", c.FilterCutoffHz))
	}
	if c.FilterEnabled && (c.FilterOrder < 2 || c.FilterOrder%2 != 0) {
		errs = append(errs, fmt.Errorf("FILTER_ORDER must be a positive even number (got %d)", c.FilterOrder))
	}
	switch c.Recognizer {
	case "whisper":
	case "vosk":
		if c.VoskURL == "" {
			errs = append(errs, errors.New("VOSK_URL is required when RECOGNIZER=vosk"))
		}
	default:
		errs = append(errs, fmt.Errorf("RECOGNIZER must be whisper or vosk (got %q)", c.Recognizer))
	}
	return errors.Join(errs...)
}

func (c Config) RecordTimeout() time.Duration { return ms(c.RecordTimeoutMs) }
func (c Config) PhraseTimeout() time.Duration { return ms(c.PhraseTimeoutMs) }
func (c Config) IdleTimeout() time.Duration   { return ms(c.IdleTimeoutMs) }

func (c Config) InferenceTimeout() time.Duration   { return ms(c.InferenceTimeoutMs) }
func (c Config) TranslationTimeout() time.Duration { return ms(c.TranslationTimeoutMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func getenvIntClamped(k string, def, min, max int) int {
	n := getenvInt(k, def)
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	f := getenvFloat(k, def)
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}
