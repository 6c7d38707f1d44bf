// Package memory provides an in-process jobevents.Bus built on a shared
// event log and per-stream queues. State is local; use the redis
// implementation when events must outlive the process.
package memory

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/spoolworks/printspool-go/jobevents"
)

// Bus implements jobevents.Bus in memory. Event IDs are decimal sequence
// numbers starting at 1.
type Bus struct {
	mu      sync.Mutex
	next    int64
	history []jobevents.Envelope
	streams map[*stream]struct{}
	closed  bool
}

var _ jobevents.Bus = (*Bus)(nil)

// New returns an empty bus.
func New() *Bus {
	return &Bus{streams: make(map[*stream]struct{})}
}

func (b *Bus) Publish(ctx context.Context, ev jobevents.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", fmt.Errorf("jobevents: bus closed")
	}
	b.next++
	env := jobevents.Envelope{ID: strconv.FormatInt(b.next, 10), Event: ev}
	b.history = append(b.history, env)
	// Fan out under the bus lock so concurrent publishes reach every
	// stream in log order.
	for s := range b.streams {
		s.push(env)
	}
	b.mu.Unlock()
	return env.ID, nil
}

func (b *Bus) Subscribe(ctx context.Context, lastEventID string) (jobevents.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("jobevents: bus closed")
	}

	s := &stream{bus: b, notify: make(chan struct{}, 1), done: make(chan struct{})}
	if lastEventID != "" {
		after, err := strconv.ParseInt(lastEventID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("jobevents: bad event id %q: %w", lastEventID, err)
		}
		for _, env := range b.history {
			id, _ := strconv.ParseInt(env.ID, 10, 64)
			if id > after {
				s.queue = append(s.queue, env)
			}
		}
	}
	b.streams[s] = struct{}{}
	return s, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*stream, 0, len(b.streams))
	for s := range b.streams {
		subs = append(subs, s)
	}
	b.streams = make(map[*stream]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.markClosed()
	}
	return nil
}

func (b *Bus) remove(s *stream) {
	b.mu.Lock()
	delete(b.streams, s)
	b.mu.Unlock()
}

// stream buffers events in arrival order. Next drains the queue before
// reporting closure, so no published event is lost on Close.
type stream struct {
	bus *Bus

	mu     sync.Mutex
	queue  []jobevents.Envelope
	closed bool
	notify chan struct{}
	done   chan struct{}
}

func (s *stream) push(env jobevents.Envelope) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, env)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) Next(ctx context.Context) (jobevents.Envelope, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			env := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return env, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return jobevents.Envelope{}, io.EOF
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return jobevents.Envelope{}, ctx.Err()
		}
	}
}

func (s *stream) markClosed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}

func (s *stream) Close() error {
	s.markClosed()
	s.bus.remove(s)
	return nil
}
