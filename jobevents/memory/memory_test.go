package memory

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spoolworks/printspool-go/jobevents"
	"github.com/spoolworks/printspool-go/print"
)

func nextWithin(t *testing.T, s jobevents.Stream) (jobevents.Envelope, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Next(ctx)
}

func TestPublishSubscribe_OrderedDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	s, err := b.Subscribe(testContext(t), "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	states := []print.JobState{print.JobStateQueued, print.JobStateStarted, print.JobStateCompleted}
	for _, st := range states {
		if _, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-1", State: st}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	for i, want := range states {
		env, err := nextWithin(t, s)
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if env.Event.State != want {
			t.Fatalf("event #%d state = %s, want %s", i, env.Event.State, want)
		}
	}
}

func TestSubscribe_ResumesAfterLastEventID(t *testing.T) {
	b := New()
	defer b.Close()

	id1, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-1", State: print.JobStateQueued})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-1", State: print.JobStateStarted}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	s, err := b.Subscribe(testContext(t), id1)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	env, err := nextWithin(t, s)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Event.State != print.JobStateStarted {
		t.Fatalf("resumed at state %s, want started", env.Event.State)
	}
}

func TestSubscribe_WithoutCursorSkipsHistory(t *testing.T) {
	b := New()
	defer b.Close()

	if _, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-1", State: print.JobStateQueued}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	s, err := b.Subscribe(testContext(t), "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	if _, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-2", State: print.JobStateQueued}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	env, err := nextWithin(t, s)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Event.JobID != "job-2" {
		t.Fatalf("got historical event %+v, want only live ones", env.Event)
	}
}

func TestNext_ContextCancelled(t *testing.T) {
	b := New()
	defer b.Close()

	s, err := b.Subscribe(testContext(t), "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClose_DrainsThenEOF(t *testing.T) {
	b := New()

	s, err := b.Subscribe(testContext(t), "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-1", State: print.JobStateQueued}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	env, err := nextWithin(t, s)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Event.JobID != "job-1" {
		t.Fatalf("drained event = %+v", env.Event)
	}
	if _, err := nextWithin(t, s); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestPublish_AfterCloseFails(t *testing.T) {
	b := New()
	b.Close()
	if _, err := b.Publish(testContext(t), jobevents.Event{JobID: "job-1", State: print.JobStateQueued}); err == nil {
		t.Fatal("expected error publishing on a closed bus")
	}
}
