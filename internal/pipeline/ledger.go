package pipeline

import (
	"fmt"
	"strings"
)

// Entry is one finalized transcript line.
type Entry struct {
	Text     string
	Language string
}

// Ledger holds a session's finalized transcript lines and their translations.
// Both lists are append-only and index-aligned: translation i belongs to
// entry i. A Ledger is owned by one session goroutine.
type Ledger struct {
	entries      []Entry
	translations []string
}

// Append records a final line and returns its index.
func (l *Ledger) Append(text, language string) int {
	l.entries = append(l.entries, Entry{Text: text, Language: language})
	return len(l.entries) - 1
}

// AppendTranslation records the translation of entry i. Translations must
// arrive in entry order.
func (l *Ledger) AppendTranslation(i int, text string) error {
	if i != len(l.translations) {
		return fmt.Errorf("ledger: translation %d out of order, next is %d", i, len(l.translations))
	}
	if i >= len(l.entries) {
		return fmt.Errorf("ledger: translation %d has no entry", i)
	}
	l.translations = append(l.translations, text)
	return nil
}

// Len is the number of entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Entry returns entry i.
func (l *Ledger) Entry(i int) Entry { return l.entries[i] }

// TranscriptThrough joins entries 0..i with single spaces.
func (l *Ledger) TranscriptThrough(i int) string {
	parts := make([]string, 0, i+1)
	for _, e := range l.entries[:i+1] {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

// TranslationsThrough joins translations 0..i with single spaces.
func (l *Ledger) TranslationsThrough(i int) string {
	return strings.Join(l.translations[:i+1], " ")
}
