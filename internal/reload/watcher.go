// Package reload re-applies tavern.yaml to running modules when the file
// changes on disk or the process receives SIGHUP.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"time"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// ConfigPath is the file to watch.
	ConfigPath string
	// PollInterval between checks, 5s when zero.
	PollInterval time.Duration
}

const defaultPollInterval = 5 * time.Second

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.PollInterval
}

// EventType tells what happened to the watched file.
type EventType string

// EventModified reports new content in the watched file.
const EventModified EventType = "modified"

// Event is sent on Watcher.Events.
type Event struct {
	Type       EventType
	ConfigPath string
}

// Watcher polls one file. An event fires when the mtime moves forward and
// the content hash differs from the last one seen, so rewriting identical
// bytes stays quiet. A missing file is not an event.
type Watcher struct {
	cfg    WatcherConfig
	events chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewWatcher returns a Watcher that is not yet polling.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{cfg: cfg, events: make(chan Event, 1)}
}

// Start polls in the background until ctx ends or Stop is called. Calls
// after the first, or after Stop, do nothing.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil || w.closed {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.poll(ctx, w.done)
}

// Events delivers change notifications. At most one is buffered; changes
// made while it is pending merge into it.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop ends polling and waits for it. It may be called any number of
// times, before or after Start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.closed = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// fileState is one observation of the watched file. The zero value means
// it could not be read.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

func (w *Watcher) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	t := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer t.Stop()

	seen := w.observe(fileState{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		cur := w.observe(seen)
		if cur.mtime.IsZero() || !cur.mtime.After(seen.mtime) {
			continue
		}
		changed := cur.sum != seen.sum
		seen = cur
		if changed {
			w.notify()
		}
	}
}

func (w *Watcher) notify() {
	select {
	case w.events <- Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath}:
	default:
	}
}

// observe hashes the file when its mtime is past prev's, and otherwise
// returns prev unchanged.
func (w *Watcher) observe(prev fileState) fileState {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return fileState{}
	}
	if !info.ModTime().After(prev.mtime) {
		return prev
	}
	data, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return fileState{}
	}
	return fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}
}
