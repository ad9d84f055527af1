package translate

import "context"

// Translator converts finalized text into another language.
// Implementations are shared by all sessions and must be safe for concurrent use.
type Translator interface {
	// Translate returns text rendered in targetLang. sourceLang may be empty
	// when the recognizer did not report one.
	Translate(ctx context.Context, text, targetLang, sourceLang string) (string, error)
}
