package stt

import "context"

// Word is one recognized word with timing in seconds, as reported by
// streaming recognizers that expose word alignment.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

// EventKind tells a partial hypothesis apart from a settled one.
type EventKind int

const (
	EventNone    EventKind = iota // recognizer produced nothing for this input
	EventPartial                  // revisable hypothesis for audio still in progress
	EventFinal                    // settled hypothesis for a completed segment
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	default:
		return "none"
	}
}

// Event is what a recognizer yields for one unit of input.
type Event struct {
	Kind     EventKind
	Text     string
	Language string // detected or configured language code, may be empty
	Words    []Word
}

// Transcription is the result of a batch recognition call.
type Transcription struct {
	Text     string
	Language string
}

// Batch transcribes a complete segment in one call.
// Implementations are shared by all sessions and must be safe for concurrent use.
type Batch interface {
	// Transcribe takes mono samples normalized to [-1, 1].
	Transcribe(ctx context.Context, samples []float32) (Transcription, error)
}

// Streaming opens one stateful recognition stream per session.
type Streaming interface {
	NewStream(ctx context.Context) (Stream, error)
}

// Stream accumulates audio and decides its own segment boundaries.
// A Stream is owned by a single session and is not safe for concurrent use.
type Stream interface {
	// Feed pushes one chunk and returns the recognizer's reaction to it.
	Feed(ctx context.Context, pcm []int16) (Event, error)

	// Close releases the stream.
	Close() error
}
