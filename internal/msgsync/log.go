package msgsync

import (
	"sort"
	"sync"
)

// DefaultMaxLogSize bounds a Log when no size is configured.
const DefaultMaxLogSize = 1000

// LogOption is a functional option for configuring a Log.
type LogOption func(*Log)

// WithMaxSize sets the maximum number of messages the log keeps. Values of
// zero or less are ignored.
func WithMaxSize(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.maxSize = n
		}
	}
}

// Log is a thread-safe message log keyed by message id and kept sorted by
// creation time. When the log grows past its bound the oldest messages are
// dropped. Watchers are notified through Changed whenever the contents
// change.
type Log struct {
	mu      sync.Mutex
	entries []Message
	ids     map[string]struct{}
	maxSize int
	notify  chan struct{}
}

// NewLog constructs an empty Log. The default bound is DefaultMaxLogSize.
func NewLog(opts ...LogOption) *Log {
	l := &Log{
		ids:     make(map[string]struct{}),
		maxSize: DefaultMaxLogSize,
		notify:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Merge adds every message whose id is not already present and returns how
// many were added. Messages already in the log are left untouched, so merging
// the same batch twice is a no-op.
func (l *Log) Merge(msgs ...Message) int {
	l.mu.Lock()

	added := 0
	for _, m := range msgs {
		if _, dup := l.ids[m.ID]; dup || m.ID == "" {
			continue
		}
		l.ids[m.ID] = struct{}{}
		l.entries = append(l.entries, m)
		added++
	}
	if added == 0 {
		l.mu.Unlock()
		return 0
	}

	sort.SliceStable(l.entries, func(i, j int) bool { return less(l.entries[i], l.entries[j]) })

	if over := len(l.entries) - l.maxSize; over > 0 {
		for _, m := range l.entries[:over] {
			delete(l.ids, m.ID)
		}
		l.entries = append([]Message(nil), l.entries[over:]...)
	}

	old := l.broadcast()
	l.mu.Unlock()

	close(old)
	return added
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.ids = make(map[string]struct{})
	old := l.broadcast()
	l.mu.Unlock()

	close(old)
}

// broadcast swaps in a fresh notify channel and returns the old one for the
// caller to close after releasing l.mu.
func (l *Log) broadcast() chan struct{} {
	old := l.notify
	l.notify = make(chan struct{})
	return old
}

// Changed returns a channel that is closed on the next change to the log.
// Callers re-read Changed after each wakeup.
func (l *Log) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notify
}

// LastID returns the id of the last message in display order, or "" when
// the log is empty. It is the cursor for the next incremental fetch.
func (l *Log) LastID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].ID
}

// Contains reports whether a message with id is in the log.
func (l *Log) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Snapshot returns a copy of the log in display order.
func (l *Log) Snapshot() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
