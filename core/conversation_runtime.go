package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/koscakluka/ema-live/core/events"
)

const (
	sessionEventQueueCapacity = 64
	slowDispatchThreshold     = time.Second
)

// conversationRuntime is the session's scheduling domain. Events from foreign
// goroutines are submitted to queue and handled one at a time by the
// dispatcher; finals are handed to the turn worker through turns.
type conversationRuntime struct {
	queue   chan events.TranscriptEvent
	closeCh chan struct{}
	endOnce sync.Once

	turns  *turnQueue
	speech *speechTurn

	slowDispatch time.Duration
}

func newConversationRuntime() *conversationRuntime {
	return &conversationRuntime{
		queue:   make(chan events.TranscriptEvent, sessionEventQueueCapacity),
		closeCh: make(chan struct{}),
		turns:   newTurnQueue(),
		speech:  newSpeechTurn(),

		slowDispatch: slowDispatchThreshold,
	}
}

// enqueue submits an event in arrival order. It blocks while the queue is
// full and returns false once the runtime has ended.
func (runtime *conversationRuntime) enqueue(event events.TranscriptEvent) bool {
	select {
	case <-runtime.closeCh:
		return false
	default:
	}

	select {
	case <-runtime.closeCh:
		return false
	case runtime.queue <- event:
		return true
	}
}

func (runtime *conversationRuntime) end() {
	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
	})
}

// dispatch runs handle for every queued event until ctx is done, the
// runtime ends or handle fails.
func (runtime *conversationRuntime) dispatch(ctx context.Context, logger *slog.Logger, handle func(context.Context, events.TranscriptEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-runtime.closeCh:
			return nil
		case event := <-runtime.queue:
			if wait := time.Since(event.OccurredAt()); wait > runtime.slowDispatch {
				logger.Warn("transcript event waited long in queue", "kind", event.Kind(), "wait", wait)
			}
			if err := handle(ctx, event); err != nil {
				return err
			}
		}
	}
}

// speechTurn tracks whether the synthesis engine has finished the turn last
// closed with an end marker. The context id is shared by every turn, so the
// next turn may only write to it once the engine is done with the previous.
type speechTurn struct {
	complete  chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newSpeechTurn() *speechTurn {
	return &speechTurn{
		complete: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// begin forgets completions that belong to earlier turns.
func (s *speechTurn) begin() {
	select {
	case <-s.complete:
	default:
	}
}

func (s *speechTurn) markComplete() {
	select {
	case s.complete <- struct{}{}:
	default:
	}
}

func (s *speechTurn) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// await blocks until the engine completes the turn, the synthesis connection
// closes or timeout passes. It reports whether the engine finished.
func (s *speechTurn) await(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.complete:
		return true, nil
	case <-s.closed:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// turnQueue is an unbounded FIFO of final transcripts so the dispatcher never
// waits on a turn in progress.
type turnQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newTurnQueue() *turnQueue {
	return &turnQueue{notify: make(chan struct{}, 1)}
}

func (q *turnQueue) push(transcript string) {
	q.mu.Lock()
	q.items = append(q.items, transcript)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *turnQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	transcript := q.items[0]
	q.items = q.items[1:]
	return transcript, true
}

// run processes queued transcripts one after another until ctx is done.
func (q *turnQueue) run(ctx context.Context, process func(context.Context, string) error) error {
	for {
		for {
			transcript, ok := q.pop()
			if !ok {
				break
			}
			if err := process(ctx, transcript); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}
