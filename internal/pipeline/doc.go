// Package pipeline turns a stream of PCM chunks into ordered partial and
// final transcript messages.
//
// One Session runs per connection. Its goroutine owns the filter state, the
// segmenter buffer and both ledgers, so ingestion never blocks on inference:
// recognition and translation tasks run on pools shared by every session and
// their results are released in submission order.
package pipeline
