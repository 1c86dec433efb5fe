package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
)

func setupTestBus(t *testing.T, s *miniredis.Miniredis) *Bus {
	t.Helper()
	bus, err := NewBus("redis://"+s.Addr(), logr.Discard())
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestNewBus(t *testing.T) {
	s := miniredis.RunT(t)
	bus := setupTestBus(t, s)

	if err := bus.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if bus.Origin() == "" {
		t.Error("expected a non-empty origin")
	}
}

func TestNewBusRejectsBadURL(t *testing.T) {
	if _, err := NewBus("not-a-url://", logr.Discard()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPublishReachesOtherInstances(t *testing.T) {
	s := miniredis.RunT(t)
	sender := setupTestBus(t, s)
	receiver := setupTestBus(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 4)
	senderGot := make(chan Event, 4)
	go func() { _ = receiver.Run(ctx, func(_ context.Context, ev Event) { got <- ev }) }()
	go func() { _ = sender.Run(ctx, func(_ context.Context, ev Event) { senderGot <- ev }) }()
	<-receiver.Ready()
	<-sender.Ready()

	if err := sender.Publish(ctx, 7); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Version != 7 || ev.Origin != sender.Origin() {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload event")
	}

	select {
	case ev := <-senderGot:
		t.Fatalf("sender received its own event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLastEvent(t *testing.T) {
	s := miniredis.RunT(t)
	bus := setupTestBus(t, s)
	ctx := context.Background()

	ev, err := bus.LastEvent(ctx)
	if err != nil || ev != nil {
		t.Fatalf("expected no event, got %+v (%v)", ev, err)
	}

	if err := bus.Publish(ctx, 3); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	ev, err = bus.LastEvent(ctx)
	if err != nil {
		t.Fatalf("LastEvent failed: %v", err)
	}
	if ev == nil || ev.Version != 3 {
		t.Fatalf("expected version 3, got %+v", ev)
	}
}

func TestRunSkipsMalformedMessages(t *testing.T) {
	s := miniredis.RunT(t)
	bus := setupTestBus(t, s)
	other := setupTestBus(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Event, 1)
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx, func(_ context.Context, ev Event) { got <- ev }) }()
	<-bus.Ready()

	s.Publish(defaultChannel, "{not json")
	if err := other.Publish(ctx, 9); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case ev := <-got:
		if ev.Version != 9 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
