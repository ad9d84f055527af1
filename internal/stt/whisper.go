package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/lukasbauer/livescribe/internal/audio"
)

// WhisperClient implements Batch against an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, faster-whisper-server, whisper.cpp server).
type WhisperClient struct {
	client     *openai.Client
	model      string
	language   string
	prompt     string
	sampleRate int
}

// WhisperConfig holds configuration for the Whisper client.
type WhisperConfig struct {
	APIKey     string
	BaseURL    string // e.g. "http://localhost:8000/v1"; empty uses api.openai.com
	Model      string // e.g. "whisper-1"
	Language   string // optional hint; empty lets the model detect
	Prompt     string
	SampleRate int
}

// NewWhisperClient creates a new batch transcription client.
func NewWhisperClient(cfg WhisperConfig) *WhisperClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &WhisperClient{
		client:     openai.NewClientWithConfig(oc),
		model:      model,
		language:   cfg.Language,
		prompt:     cfg.Prompt,
		sampleRate: sampleRate,
	}
}

// Transcribe uploads the segment as WAV and returns the text and detected language.
func (c *WhisperClient) Transcribe(ctx context.Context, samples []float32) (Transcription, error) {
	wavData, err := audio.EncodeWAV(audio.FromFloat32s(samples), c.sampleRate)
	if err != nil {
		return Transcription{}, fmt.Errorf("whisper: %w", err)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(wavData),
		Prompt:   c.prompt,
		Language: c.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Transcription{}, fmt.Errorf("whisper: transcription request: %w", err)
	}

	text := strings.TrimSpace(strings.ReplaceAll(resp.Text, "[BLANK_AUDIO]", ""))
	lang := LanguageCode(resp.Language)
	if lang == "" {
		lang = c.language
	}
	return Transcription{Text: text, Language: lang}, nil
}

// whisperLanguages maps the language names returned in verbose_json to ISO 639
// codes. It covers every language Whisper can detect.
var whisperLanguages = map[string]string{
	"english":        "en",
	"chinese":        "zh",
	"german":         "de",
	"spanish":        "es",
	"russian":        "ru",
	"korean":         "ko",
	"french":         "fr",
	"japanese":       "ja",
	"portuguese":     "pt",
	"turkish":        "tr",
	"polish":         "pl",
	"catalan":        "ca",
	"dutch":          "nl",
	"arabic":         "ar",
	"swedish":        "sv",
	"italian":        "it",
	"indonesian":     "id",
	"hindi":          "hi",
	"finnish":        "fi",
	"vietnamese":     "vi",
	"hebrew":         "he",
	"ukrainian":      "uk",
	"greek":          "el",
	"malay":          "ms",
	"czech":          "cs",
	"romanian":       "ro",
	"danish":         "da",
	"hungarian":      "hu",
	"tamil":          "ta",
	"norwegian":      "no",
	"thai":           "th",
	"urdu":           "ur",
	"croatian":       "hr",
	"bulgarian":      "bg",
	"lithuanian":     "lt",
	"latin":          "la",
	"maori":          "mi",
	"malayalam":      "ml",
	"welsh":          "cy",
	"slovak":         "sk",
	"telugu":         "te",
	"persian":        "fa",
	"latvian":        "lv",
	"bengali":        "bn",
	"serbian":        "sr",
	"azerbaijani":    "az",
	"slovenian":      "sl",
	"kannada":        "kn",
	"estonian":       "et",
	"macedonian":     "mk",
	"breton":         "br",
	"basque":         "eu",
	"icelandic":      "is",
	"armenian":       "hy",
	"nepali":         "ne",
	"mongolian":      "mn",
	"bosnian":        "bs",
	"kazakh":         "kk",
	"albanian":       "sq",
	"swahili":        "sw",
	"galician":       "gl",
	"marathi":        "mr",
	"punjabi":        "pa",
	"sinhala":        "si",
	"khmer":          "km",
	"shona":          "sn",
	"yoruba":         "yo",
	"somali":         "so",
	"afrikaans":      "af",
	"occitan":        "oc",
	"georgian":       "ka",
	"belarusian":     "be",
	"tajik":          "tg",
	"sindhi":         "sd",
	"gujarati":       "gu",
	"amharic":        "am",
	"yiddish":        "yi",
	"lao":            "lo",
	"uzbek":          "uz",
	"faroese":        "fo",
	"haitian creole": "ht",
	"pashto":         "ps",
	"turkmen":        "tk",
	"nynorsk":        "nn",
	"maltese":        "mt",
	"sanskrit":       "sa",
	"luxembourgish":  "lb",
	"myanmar":        "my",
	"tibetan":        "bo",
	"tagalog":        "tl",
	"malagasy":       "mg",
	"assamese":       "as",
	"tatar":          "tt",
	"hawaiian":       "haw",
	"lingala":        "ln",
	"hausa":          "ha",
	"bashkir":        "ba",
	"javanese":       "jv",
	"sundanese":      "su",
	"cantonese":      "yue",

	// alternative names
	"burmese":       "my",
	"valencian":     "ca",
	"flemish":       "nl",
	"haitian":       "ht",
	"letzeburgesch": "lb",
	"pushto":        "ps",
	"panjabi":       "pa",
	"moldavian":     "ro",
	"moldovan":      "ro",
	"sinhalese":     "si",
	"castilian":     "es",
	"mandarin":      "zh",
}

var knownCodes = func() map[string]bool {
	m := make(map[string]bool, len(whisperLanguages))
	for _, code := range whisperLanguages {
		m[code] = true
	}
	return m
}()

// LanguageCode normalizes a language reported by a recognizer to a short code.
// Codes pass through lowercased. Names it cannot map yield "", so callers
// treat the language as unknown rather than forwarding a name.
func LanguageCode(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := whisperLanguages[name]; ok {
		return code
	}
	if knownCodes[name] {
		return name
	}
	return ""
}
