package pubsub

import (
	"context"
	"testing"
	"time"
)

func newTestPublisher(t *testing.T, topic string, cfg TopicConfig) *SSEPublisher {
	t.Helper()
	pub := NewSSEPublisher()
	t.Cleanup(func() { pub.Close() })
	pub.ConfigureTopic(topic, cfg)
	return pub
}

func publishStatuses(t *testing.T, pub *SSEPublisher, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		err := pub.Publish(TopicSyncStatus, "sync_status", SyncStatus{
			State: "committing",
			RunID: "run",
		})
		if err != nil {
			t.Fatalf("publishing status %d: %v", i, err)
		}
	}
}

func recvEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectSilence(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case event := <-sub.Events():
		t.Errorf("unexpected event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReplayAllKeepsLastN(t *testing.T) {
	pub := newTestPublisher(t, TopicSyncStatus, TopicConfig{BufferSize: 3, ReplayAll: true})
	publishStatuses(t, pub, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicSyncStatus)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	// A late subscriber sees the buffered tail: versions 3, 4, 5.
	for want := 3; want <= 5; want++ {
		event := recvEvent(t, sub)
		if event.Version != want {
			t.Errorf("expected version %d, got %d", want, event.Version)
		}
	}
}

func TestReplayLastOnly(t *testing.T) {
	pub := newTestPublisher(t, TopicSyncStatus, TopicConfig{BufferSize: 5, ReplayAll: false})
	publishStatuses(t, pub, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicSyncStatus)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	if event := recvEvent(t, sub); event.Version != 3 {
		t.Errorf("expected version 3, got %d", event.Version)
	}
	expectSilence(t, sub)
}

func TestNoBufferDeliversOnlyLive(t *testing.T) {
	pub := newTestPublisher(t, TopicGraph, TopicConfig{BufferSize: 0, ReplayAll: false})

	for i := 1; i <= 3; i++ {
		err := pub.Publish(TopicGraph, "graph", GraphSummary{Files: i})
		if err != nil {
			t.Fatalf("publishing summary %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicGraph)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Close()

	// Nothing buffered, nothing replayed.
	expectSilence(t, sub)

	if err := pub.Publish(TopicGraph, "graph", GraphSummary{Files: 4}); err != nil {
		t.Fatalf("publishing live event: %v", err)
	}
	if event := recvEvent(t, sub); event.Version != 4 {
		t.Errorf("expected version 4, got %d", event.Version)
	}
}
