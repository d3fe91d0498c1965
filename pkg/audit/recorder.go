// Package audit records domain events emitted by the covenant engines.
// Events are fire-and-forget observability signals; emission order is call
// order and a failing recorder never fails the mutation that produced the
// event.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/covenant-labs/covenant/pkg/contracts"
)

// Event is a structured domain event record.
type Event struct {
	ID        string                 `json:"id"`
	Type      contracts.EventType    `json:"type"`
	ContextID string                 `json:"context_id,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Recorder is the interface mutations emit domain events through.
type Recorder interface {
	Record(ctx context.Context, eventType contracts.EventType, contextID, actor string, metadata map[string]interface{}) error
}

// logger implements Recorder, writing structured JSON lines to a
// configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewRecorder creates a Recorder writing to os.Stdout.
func NewRecorder() Recorder {
	return NewRecorderWithWriter(os.Stdout)
}

// NewRecorderWithWriter creates a Recorder writing to the given writer.
// This allows injection for testing and custom sinks.
func NewRecorderWithWriter(w io.Writer) Recorder {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(ctx context.Context, eventType contracts.EventType, contextID, actor string, metadata map[string]interface{}) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ContextID: contextID,
		Actor:     actor,
		Timestamp: l.clock().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with EVENT: for easy filtering
	_, err = l.writer.Write(append([]byte("EVENT: "), append(bytes, '\n')...))
	return err
}

// Nop discards every event. Engines accept it where observability is not
// wired.
type Nop struct{}

func (Nop) Record(context.Context, contracts.EventType, string, string, map[string]interface{}) error {
	return nil
}

// Multi fans one event out to several recorders, returning the first error.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, eventType contracts.EventType, contextID, actor string, metadata map[string]interface{}) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, eventType, contextID, actor, metadata); err != nil && first == nil {
			first = err
		}
	}
	return first
}
