package watcher

import (
	"context"
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	input := make(chan ChangeEvent)
	d := NewDebouncer(input, 20*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	input <- ChangeEvent{Paths: []string{"a.go"}, Timestamp: time.Now()}
	input <- ChangeEvent{Paths: []string{"b.go", "a.go"}, Timestamp: time.Now()}

	select {
	case event := <-d.Output():
		if len(event.Paths) != 2 {
			t.Fatalf("expected deduped batch of 2, got %v", event.Paths)
		}
	case <-time.After(time.Second):
		t.Fatal("no flush after quiet period")
	}
}

func TestDebouncer_MaxWaitFlushes(t *testing.T) {
	input := make(chan ChangeEvent)
	d := NewDebouncer(input, time.Hour, 30*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	// A steady stream never goes quiet; maxWait must still flush.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case input <- ChangeEvent{Paths: []string{"a.go"}, Timestamp: time.Now()}:
				time.Sleep(5 * time.Millisecond)
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-d.Output():
	case <-time.After(time.Second):
		t.Fatal("maxWait did not force a flush")
	}
	cancel()
	<-done
}

func TestDebouncer_ClosesOnInputClose(t *testing.T) {
	input := make(chan ChangeEvent, 1)
	d := NewDebouncer(input, time.Hour, time.Hour)
	d.Start(context.Background())

	input <- ChangeEvent{Paths: []string{"a.go"}, Timestamp: time.Now()}
	close(input)

	// The pending batch is flushed before the output closes.
	event, ok := <-d.Output()
	if !ok || len(event.Paths) != 1 {
		t.Fatalf("expected final flush, got %v ok=%v", event.Paths, ok)
	}
	if _, ok := <-d.Output(); ok {
		t.Fatal("output not closed")
	}
}
