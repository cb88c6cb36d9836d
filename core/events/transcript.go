package events

import (
	"strings"
	"time"
)

// Kind names an event as "<namespace>.<name>".
type Kind string

// Namespace returns the part of the kind before the first dot.
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

type Event interface {
	Kind() Kind
	// OccurredAt is when the event was created on the producing goroutine.
	OccurredAt() time.Time
}

type header struct {
	kind       Kind
	occurredAt time.Time
}

func newHeader(kind Kind) header {
	return header{kind: kind, occurredAt: time.Now()}
}

func (h header) Kind() Kind            { return h.kind }
func (h header) OccurredAt() time.Time { return h.occurredAt }

const (
	// KindTranscriptPartial identifies an in-progress recognition result.
	KindTranscriptPartial Kind = "transcript.partial"
	// KindTranscriptFinal identifies the completed result for one utterance.
	KindTranscriptFinal Kind = "transcript.final"
	// KindTranscriptError identifies an engine-reported error.
	KindTranscriptError Kind = "transcript.error"
	// KindTranscriptClosed identifies engine-side termination of the stream.
	KindTranscriptClosed Kind = "transcript.closed"
)

// TranscriptEvent is implemented by every event a transcription engine can
// produce. The set is closed: Partial, Final, Error and Closed.
type TranscriptEvent interface {
	Event
	transcriptEvent()
}

// TranscriptPartial carries mutable, not yet final recognition text.
type TranscriptPartial struct {
	header
	Text string
}

// NewTranscriptPartial creates a partial transcript event.
func NewTranscriptPartial(text string) TranscriptPartial {
	return TranscriptPartial{header: newHeader(KindTranscriptPartial), Text: text}
}

func (TranscriptPartial) transcriptEvent() {}

// TranscriptFinal carries the completed transcript of one utterance.
type TranscriptFinal struct {
	header
	Text string
}

// NewTranscriptFinal creates a final transcript event.
func NewTranscriptFinal(text string) TranscriptFinal {
	return TranscriptFinal{header: newHeader(KindTranscriptFinal), Text: text}
}

func (TranscriptFinal) transcriptEvent() {}

// TranscriptError carries an error reported by the engine. It does not end
// the stream.
type TranscriptError struct {
	header
	Message string
}

// NewTranscriptError creates a transcript error event.
func NewTranscriptError(message string) TranscriptError {
	return TranscriptError{header: newHeader(KindTranscriptError), Message: message}
}

func (TranscriptError) transcriptEvent() {}

// TranscriptClosed marks engine-side termination, carrying the processed
// audio duration.
type TranscriptClosed struct {
	header
	DurationSeconds float64
}

// NewTranscriptClosed creates a transcript closed event.
func NewTranscriptClosed(durationSeconds float64) TranscriptClosed {
	return TranscriptClosed{header: newHeader(KindTranscriptClosed), DurationSeconds: durationSeconds}
}

func (TranscriptClosed) transcriptEvent() {}
