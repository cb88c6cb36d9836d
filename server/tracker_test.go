package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTrackerRegisterAndUnregister(t *testing.T) {
	tracker := NewTracker()

	unregister, ok := tracker.Register("a", func() {})
	if !ok {
		t.Fatalf("expected first registration to succeed")
	}
	if got := tracker.Count(); got != 1 {
		t.Fatalf("expected 1 session, got %d", got)
	}

	if _, ok := tracker.Register("a", func() {}); ok {
		t.Fatalf("expected duplicate registration to be refused")
	}

	unregister()
	unregister()
	if got := tracker.Count(); got != 0 {
		t.Fatalf("expected 0 sessions, got %d", got)
	}
	if _, ok := tracker.Register("a", func() {}); !ok {
		t.Fatalf("expected re-registration after unregister to succeed")
	}
}

func TestTrackerCancelAllAndWait(t *testing.T) {
	tracker := NewTracker()
	var canceled atomic.Int32

	var unregisters []func()
	for _, id := range []string{"a", "b"} {
		var unregister func()
		unregister, _ = tracker.Register(id, func() {
			canceled.Add(1)
		})
		unregisters = append(unregisters, unregister)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tracker.Wait(ctx) {
		t.Fatalf("expected wait to time out with live sessions")
	}

	if got := tracker.CancelAll(); got != 2 {
		t.Fatalf("expected 2 cancellations, got %d", got)
	}
	if got := canceled.Load(); got != 2 {
		t.Fatalf("expected cancel funcs to run, got %d", got)
	}

	for _, unregister := range unregisters {
		unregister()
	}
	if !tracker.Wait(context.Background()) {
		t.Fatalf("expected wait to finish once sessions unregistered")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	unregister, ok := tracker.Register("a", nil)
	unregister()
	if !ok || tracker.Count() != 0 || tracker.CancelAll() != 0 || !tracker.Wait(context.Background()) {
		t.Fatalf("expected nil tracker to be a no-op")
	}
}
