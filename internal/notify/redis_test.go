package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	n, err := NewRedisNotifier("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create notifier: %v", err)
	}
	return n, s
}

func TestNewRedisNotifier(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	n, err := NewRedisNotifier("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisNotifier failed: %v", err)
	}
	defer n.Close()

	if err := n.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	n, s := setupTestNotifier(t)
	defer n.Close()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	if err := n.Subscribe(ctx, func(e Event) { received <- e }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sent := Event{DocumentID: "doc-1", ChangedBy: "alice"}
	if err := n.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.DocumentID != "doc-1" || got.ChangedBy != "alice" {
			t.Errorf("event = %+v", got)
		}
		if got.ChangedAt.IsZero() {
			t.Error("ChangedAt not defaulted on publish")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	n, s := setupTestNotifier(t)
	defer n.Close()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Event, 4)
	if err := n.Subscribe(ctx, func(e Event) { received <- e }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	// Give the reader goroutine a moment to observe the cancel.
	time.Sleep(50 * time.Millisecond)
	_ = n.Publish(context.Background(), Event{DocumentID: "doc-late"})

	select {
	case e := <-received:
		t.Errorf("received %+v after cancel", e)
	case <-time.After(200 * time.Millisecond):
	}
}
