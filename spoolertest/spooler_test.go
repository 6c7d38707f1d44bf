package spoolertest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/jobevents"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/servicedir"
	"github.com/spoolworks/printspool-go/spooler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type docSessionFake struct {
	obs spooler.DestroyObserver
}

func (f *docSessionFake) RegisterObserver(obs spooler.DestroyObserver) { f.obs = obs }
func (f *docSessionFake) Start()                                       {}
func (f *docSessionFake) Layout(oldAttrs, newAttrs *print.Attributes, reply spooler.LayoutResultSender, meta document.LayoutMetadata, seq int32) {
}
func (f *docSessionFake) Write(pages []print.PageRange, sink io.WriteCloser, reply spooler.WriteResultSender, seq int32) {
}
func (f *docSessionFake) Finish() {}

type listenerFake struct {
	ids chan print.JobID
}

func newListenerFake() *listenerFake {
	return &listenerFake{ids: make(chan print.JobID, 8)}
}

func (l *listenerFake) OnJobStateChanged(id print.JobID) {
	l.ids <- id
}

func nextEnvelope(t *testing.T, stream jobevents.Stream) jobevents.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return env
}

func TestSpooler_CreateJobPublishesCreated(t *testing.T) {
	sp := New(WithLogger(testLogger()))

	stream, err := sp.Bus().Subscribe(testContext(t), "")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer stream.Close()

	job := sp.CreateJob("tps report", nil)
	if job.State != print.JobStateCreated {
		t.Fatalf("job state = %q, want %q", job.State, print.JobStateCreated)
	}

	env := nextEnvelope(t, stream)
	if env.Event.JobID != job.ID || env.Event.State != print.JobStateCreated {
		t.Fatalf("event = %+v, want created for %s", env.Event, job.ID)
	}
}

func TestSpooler_CancelJob(t *testing.T) {
	sp := New(WithLogger(testLogger()))
	ctx := testContext(t)

	if err := sp.CancelJob(ctx, print.JobID("nope")); !errors.Is(err, spooler.ErrJobNotFound) {
		t.Fatalf("CancelJob(unknown) error = %v, want ErrJobNotFound", err)
	}

	job := sp.CreateJob("doomed", nil)
	if err := sp.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	got, err := sp.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job() error = %v", err)
	}
	if got.State != print.JobStateCancelled {
		t.Fatalf("state = %q, want cancelled", got.State)
	}

	// Cancelling a terminal job is a no-op, not an error.
	if err := sp.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("CancelJob(terminal) error = %v", err)
	}
}

func TestSpooler_RestartJobOnlyWhenFailed(t *testing.T) {
	sp := New(WithLogger(testLogger()))
	ctx := testContext(t)

	job := sp.CreateJob("flaky", nil)
	sp.SetJobState(job.ID, print.JobStateFailed)

	if err := sp.RestartJob(ctx, job.ID); err != nil {
		t.Fatalf("RestartJob() error = %v", err)
	}
	got, _ := sp.Job(ctx, job.ID)
	if got.State != print.JobStateQueued {
		t.Fatalf("state after restart = %q, want queued", got.State)
	}

	sp.SetJobState(job.ID, print.JobStateCompleted)
	if err := sp.RestartJob(ctx, job.ID); err != nil {
		t.Fatalf("RestartJob(completed) error = %v", err)
	}
	got, _ = sp.Job(ctx, job.ID)
	if got.State != print.JobStateCompleted {
		t.Fatalf("restart of a completed job moved it to %q", got.State)
	}
}

func TestSpooler_ListenersNotifiedInline(t *testing.T) {
	sp := New(WithLogger(testLogger()))
	ctx := testContext(t)

	l := newListenerFake()
	if err := sp.RegisterJobListener(ctx, l); err != nil {
		t.Fatalf("RegisterJobListener() error = %v", err)
	}

	job := sp.CreateJob("watched", nil)
	sp.SetJobState(job.ID, print.JobStateQueued)

	select {
	case id := <-l.ids:
		if id != job.ID {
			t.Fatalf("listener got %s, want %s", id, job.ID)
		}
	default:
		t.Fatal("listener not notified synchronously")
	}

	if err := sp.UnregisterJobListener(ctx, l); err != nil {
		t.Fatalf("UnregisterJobListener() error = %v", err)
	}
	sp.SetJobState(job.ID, print.JobStateStarted)
	select {
	case id := <-l.ids:
		t.Fatalf("unregistered listener notified for %s", id)
	default:
	}
}

func TestSpooler_JobsSortedByCreation(t *testing.T) {
	sp := New(WithLogger(testLogger()))

	first := sp.CreateJob("first", nil)
	second := sp.CreateJob("second", nil)
	third := sp.CreateJob("third", nil)

	jobs, err := sp.Jobs(testContext(t))
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len(jobs) = %d, want 3", len(jobs))
	}
	want := []print.JobID{first.ID, second.ID, third.ID}
	for i, job := range jobs {
		if job.ID != want[i] {
			t.Fatalf("jobs[%d] = %s, want %s", i, job.ID, want[i])
		}
	}
}

func TestSpooler_SessionDestroyCancelsRunningJob(t *testing.T) {
	sp := New(WithLogger(testLogger()))
	ctx := testContext(t)

	doc := &docSessionFake{}
	res, err := sp.CreateSession(ctx, &spooler.CreateSessionRequest{
		SessionID: "sess-1",
		JobName:   "mid-flight",
		Session:   doc,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if doc.obs == nil {
		t.Fatal("observer not registered on the document session")
	}

	doc.obs.OnSessionDestroyed()

	got, err := sp.Job(ctx, res.Job.ID)
	if err != nil {
		t.Fatalf("Job() error = %v", err)
	}
	if got.State != print.JobStateCancelled {
		t.Fatalf("state = %q, want cancelled", got.State)
	}
}

func TestSpooler_SessionDestroyLeavesTerminalJobAlone(t *testing.T) {
	sp := New(WithLogger(testLogger()))
	ctx := testContext(t)

	doc := &docSessionFake{}
	res, err := sp.CreateSession(ctx, &spooler.CreateSessionRequest{
		SessionID: "sess-2",
		JobName:   "done already",
		Session:   doc,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	sp.SetJobState(res.Job.ID, print.JobStateCompleted)
	doc.obs.OnSessionDestroyed()

	got, _ := sp.Job(ctx, res.Job.ID)
	if got.State != print.JobStateCompleted {
		t.Fatalf("state = %q, want completed", got.State)
	}
}

func TestSpooler_ServicesFromDirectory(t *testing.T) {
	root := t.TempDir()
	descriptor := `{"id":"archiver","label":"PDF Archiver","supportedContentTypes":["application/pdf"]}`
	if err := os.WriteFile(filepath.Join(root, "archiver.json"), []byte(descriptor), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	dir, err := servicedir.New(root, servicedir.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("servicedir.New() error = %v", err)
	}

	sp := New(WithLogger(testLogger()), WithServiceDirectory(dir))
	services, err := sp.Services(testContext(t))
	if err != nil {
		t.Fatalf("Services() error = %v", err)
	}
	if len(services) != 1 || services[0].ID != "archiver" {
		t.Fatalf("Services() = %+v, want the archiver", services)
	}
}

func TestSpooler_PresentErrSurfacesThroughConfig(t *testing.T) {
	sp := New(WithLogger(testLogger()))
	sp.PresentErr = errors.New("dialog dismissed")
	ctx := testContext(t)

	res, err := sp.CreateSession(ctx, &spooler.CreateSessionRequest{
		SessionID: "sess-3",
		JobName:   "unwanted",
		Session:   &docSessionFake{},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := res.Config.Present(ctx); err == nil {
		t.Fatal("Present() succeeded, want injected error")
	}
}
