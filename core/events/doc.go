// Package events defines the typed events that flow into a live session.
//
// Event kinds are grouped by namespace:
//
//   - transcript.*
//
// transcript events
//
//   - TranscriptPartial (transcript.partial): mutable in-progress recognition
//     text. Forwarded to the client as soon as it arrives.
//   - TranscriptFinal (transcript.final): completed utterance. Starts a turn.
//   - TranscriptError (transcript.error): engine-reported error. The stream
//     stays open.
//   - TranscriptClosed (transcript.closed): the engine terminated the stream;
//     no further audio is accepted.
//
// Every event records when it was created, see [Event.OccurredAt].
package events
