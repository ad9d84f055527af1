package pipeline

import (
	"time"

	"github.com/lukasbauer/livescribe/internal/audio"
)

// Chunk is one inbound block of PCM stamped with its arrival time.
type Chunk struct {
	Data []byte
	At   time.Time
}

// Segmenter accumulates filtered mono PCM until it covers the record
// timeout, and forgets what it has when the speaker pauses for longer than
// the phrase timeout.
type Segmenter struct {
	sampleRate    int
	recordTimeout time.Duration
	phraseTimeout time.Duration
	readyBytes    int

	buf         []byte
	lastChunkAt time.Time
	seen        bool
}

func NewSegmenter(sampleRate int, recordTimeout, phraseTimeout time.Duration) *Segmenter {
	ready := audio.BytesFor(recordTimeout, sampleRate)
	if ready < audio.BytesPerSample {
		ready = audio.BytesPerSample
	}
	return &Segmenter{
		sampleRate:    sampleRate,
		recordTimeout: recordTimeout,
		phraseTimeout: phraseTimeout,
		readyBytes:    ready,
		buf:           make([]byte, 0, ready),
	}
}

// Push appends pcm received at the given time. A gap longer than the phrase
// timeout since the previous chunk first clears the buffer; discarded is the
// number of bytes thrown away that way. When the buffer reaches the record
// timeout its contents are returned as segment and the buffer starts over.
// The returned segment is never aliased by the segmenter.
func (s *Segmenter) Push(pcm []byte, at time.Time) (segment []byte, discarded int) {
	if s.seen && at.Sub(s.lastChunkAt) > s.phraseTimeout {
		discarded = len(s.buf)
		s.buf = s.buf[:0]
	}
	s.buf = append(s.buf, pcm...)
	s.lastChunkAt = at
	s.seen = true

	if len(s.buf) >= s.readyBytes {
		segment = s.buf
		s.buf = make([]byte, 0, s.readyBytes)
	}
	return segment, discarded
}

// Buffered is the duration of audio waiting for the next segment.
func (s *Segmenter) Buffered() time.Duration {
	return audio.Duration(len(s.buf), s.sampleRate)
}

// LastChunkAt is the arrival time of the most recent chunk, zero before any.
func (s *Segmenter) LastChunkAt() time.Time {
	return s.lastChunkAt
}

// Idle reports whether the next chunk arriving at now would reset the buffer.
func (s *Segmenter) Idle(now time.Time) bool {
	return idleSince(s.lastChunkAt, now, s.phraseTimeout)
}

func idleSince(last, now time.Time, phraseTimeout time.Duration) bool {
	return !last.IsZero() && now.Sub(last) > phraseTimeout
}
