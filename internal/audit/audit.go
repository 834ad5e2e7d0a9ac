// Package audit records operator actions (connect, disconnect, message sends
// and MCP tool calls) to one or more sinks.
package audit

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one audited action. Credential holds a fingerprint, never the
// credential itself.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	Credential string         `json:"credential,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Params     map[string]any `json:"params"`
	Result     string         `json:"result"`
	Duration   time.Duration  `json:"duration_ns"`
}

// Sink receives audit entries.
type Sink interface {
	Log(Entry) error
}

// Logger writes entries as JSON lines. A nil *Logger discards entries.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger returns a Logger writing to w, or nil when w is nil.
func NewLogger(w io.Writer) *Logger {
	if w == nil {
		return nil
	}
	return &Logger{w: w}
}

// Log writes e as a single JSON line. Concurrent calls never interleave.
func (l *Logger) Log(e Entry) error {
	if l == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}

// Multi fans entries out to every non-nil sink and joins their errors.
type Multi []Sink

// Log implements Sink.
func (m Multi) Log(e Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Log(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record builds an entry for action and sends it to sink. A nil sink is a
// no-op. The result is "success" when err is nil and "error: <err>"
// otherwise.
func Record(sink Sink, action, credential, requestID string, params map[string]any, start time.Time, err error) {
	if sink == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error: " + err.Error()
	}
	_ = sink.Log(Entry{
		ID:         uuid.NewString(),
		Timestamp:  start.UTC(),
		Action:     action,
		Credential: credential,
		RequestID:  requestID,
		Params:     params,
		Result:     result,
		Duration:   time.Since(start),
	})
}
