package pipeline

import "github.com/lukasbauer/livescribe/internal/stt"

// MessageType discriminates outbound text messages.
type MessageType string

const (
	MessagePartial MessageType = "partial"
	MessageFinal   MessageType = "final"
)

// Message is the JSON document sent to the client for each recognition
// event. Partials carry only Type and Text.
type Message struct {
	Type           MessageType `json:"type"`
	Text           string      `json:"text"`
	Translation    string      `json:"translation,omitempty"`
	DetectedLang   string      `json:"detected_lang,omitempty"`
	Transcript     string      `json:"transcript,omitempty"`
	TranslationAll string      `json:"translation_all,omitempty"`
	Words          []stt.Word  `json:"words,omitempty"`
}
