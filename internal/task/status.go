package task

import (
	"log/slog"
	"math"
	"sync"
)

// StatusSnapshot is delivered after every terminal per-item outcome.
type StatusSnapshot struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Progress is round(100 * (completed + failed) / total). An empty batch is complete.
func (s StatusSnapshot) Progress() int {
	if s.Total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(s.Completed+s.Failed) / float64(s.Total)))
}

// StatusListener receives status snapshots.
type StatusListener func(StatusSnapshot)

// tracker counts outcomes and notifies listeners. Counting and notification
// happen under one lock so listeners observe snapshots in order.
type tracker struct {
	mu        sync.Mutex
	snapshot  StatusSnapshot
	listeners []*statusSubscription
	logger    *slog.Logger
}

type statusSubscription struct {
	fn StatusListener
}

func (t *tracker) subscribe(fn StatusListener) func() {
	sub := &statusSubscription{fn: fn}

	t.mu.Lock()
	t.listeners = append(t.listeners, sub)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, l := range t.listeners {
				if l == sub {
					t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *tracker) start(total int) {
	t.mu.Lock()
	t.snapshot = StatusSnapshot{Total: total}
	t.mu.Unlock()
}

func (t *tracker) record(failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if failed {
		t.snapshot.Failed++
	} else {
		t.snapshot.Completed++
	}
	snapshot := t.snapshot
	for _, l := range t.listeners {
		t.notify(l, snapshot)
	}
}

func (t *tracker) notify(l *statusSubscription, snapshot StatusSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("status listener panicked", "panic", r)
		}
	}()
	l.fn(snapshot)
}

func (t *tracker) current() StatusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}
