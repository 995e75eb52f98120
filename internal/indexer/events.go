package indexer

import (
	"github.com/charmbracelet/log"
)

// EventType names a progress event emitted during an indexing run.
type EventType string

const (
	EventScanStart         EventType = "scan_start"
	EventFileProcessing    EventType = "file_processing"
	EventFileProcessed     EventType = "file_processed"
	EventFileSkipped       EventType = "file_skipped"
	EventFileDeleted       EventType = "file_deleted"
	EventEmbeddingStart    EventType = "embedding_start"
	EventEmbeddingProgress EventType = "embedding_progress"
	EventEmbeddingComplete EventType = "embedding_complete"
	EventSaving            EventType = "saving"
	EventSaveComplete      EventType = "save_complete"
	EventStats             EventType = "stats"
	EventDone              EventType = "done"
	EventError             EventType = "error"
	EventFatalError        EventType = "fatal_error"
)

// Event is one progress notification. Data holds the event's fields keyed
// by their wire names; it is nil for events that carry no payload.
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Sink receives progress events from a run. Implementations must not block:
// a slow sink stalls the indexing pipeline.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) {
	f(e)
}

// NopSink discards all events.
var NopSink = SinkFunc(func(Event) {})

// emit delivers an event to the sink, guarding the pipeline against a sink
// that panics.
func emit(sink Sink, t EventType, data map[string]any) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Event sink panicked", "event", t, "panic", r)
		}
	}()
	sink.Emit(Event{Type: t, Data: data})
}
