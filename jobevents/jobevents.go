// Package jobevents defines the job-state event bus a spooler publishes
// transitions on. Transports subscribe and forward events to connected
// clients; the in-memory implementation backs single-process spoolers and
// tests, the Redis Streams implementation backs spoolers that survive
// restarts or run more than one frontend.
package jobevents

import (
	"context"
	"encoding/json"

	"github.com/spoolworks/printspool-go/print"
)

// Event is one job state transition.
type Event struct {
	JobID print.JobID    `json:"jobId"`
	State print.JobState `json:"state"`
}

// Envelope pairs an event with its bus-assigned position. IDs are
// monotonically increasing within one bus and usable as resume cursors.
type Envelope struct {
	ID    string `json:"id"`
	Event Event  `json:"event"`
}

// Bus records job state transitions and fans them out in order.
type Bus interface {
	// Publish appends the event and delivers it to open streams. It returns
	// the assigned event ID.
	Publish(ctx context.Context, ev Event) (eventID string, err error)

	// Subscribe opens an ordered stream. An empty lastEventID starts at the
	// next published event; a non-empty one resumes right after it.
	Subscribe(ctx context.Context, lastEventID string) (Stream, error)

	// Close shuts the bus down. Open streams drain and then report io.EOF.
	Close() error
}

// Stream is single-consumer ordered event consumption.
type Stream interface {
	// Next blocks until an event is available or ctx is cancelled. It
	// returns io.EOF once the stream is closed and drained.
	Next(ctx context.Context) (Envelope, error)

	// Close releases the stream.
	Close() error
}

// MarshalEvent encodes an event for transports that carry raw bytes.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// UnmarshalEvent decodes an event produced by MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
