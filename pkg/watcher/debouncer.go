package watcher

import (
	"context"
	"time"

	"github.com/depscope/depscope/pkg/logging"
)

// Debouncer coalesces bursts of change events so one editor save or branch
// switch triggers a single sync. A flush happens after quietPeriod without
// new events, or after maxWait from the first pending event, whichever
// comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins debouncing until ctx is cancelled or the input closes.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// Output returns the debounced event channel. It is closed when the
// debouncer stops, after a final flush of anything pending.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var pending []string
	quiet := newStoppedTimer()
	deadline := newStoppedTimer()

	flush := func() {
		quiet.Stop()
		deadline.Stop()
		if len(pending) == 0 {
			return
		}
		logging.Debug("Flushing change batch", "paths", len(pending))
		d.output <- ChangeEvent{Paths: dedupe(pending), Timestamp: time.Now()}
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if len(pending) == 0 {
				deadline.Reset(d.maxWait)
			}
			pending = append(pending, event.Paths...)
			quiet.Reset(d.quietPeriod)

		case <-quiet.C:
			flush()

		case <-deadline.C:
			flush()
		}
	}
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
