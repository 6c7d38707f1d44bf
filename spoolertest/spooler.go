// Package spoolertest provides an in-process print spooler for tests and
// examples: a spooler.Service backed by a job table and a jobevents bus, a
// Driver that plays the spooler's role against a document session, and a
// WebSocket server speaking the spool wire protocol. None of it is suitable
// for production use.
package spoolertest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spoolworks/printspool-go/jobevents"
	"github.com/spoolworks/printspool-go/jobevents/memory"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/servicedir"
	"github.com/spoolworks/printspool-go/spooler"
)

// Spooler is an in-process spooler.Service. Sessions register with it
// directly (no transport); jobs live in a table and every state transition
// is published on the bus and fanned out to registered listeners.
type Spooler struct {
	log *slog.Logger
	bus jobevents.Bus

	mu        sync.Mutex
	jobs      map[print.JobID]*print.JobInfo
	order     []print.JobID
	sessions  map[string]*session
	lastDoc   spooler.DocumentSession
	listeners map[spooler.JobStateListener]struct{}
	services  []print.ServiceInfo
	dir       *servicedir.Directory

	// PresentErr, when set before a CreateSession call, is returned by the
	// config handle's Present to exercise the caller's abort path.
	PresentErr error
}

var _ spooler.Service = (*Spooler)(nil)

// Option configures a Spooler.
type Option func(*Spooler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Spooler) { s.log = log }
}

// WithBus sets the event bus. Defaults to an in-memory bus owned by the
// spooler.
func WithBus(bus jobevents.Bus) Option {
	return func(s *Spooler) { s.bus = bus }
}

// WithServices seeds the installed print services.
func WithServices(services ...print.ServiceInfo) Option {
	return func(s *Spooler) { s.services = services }
}

// WithServiceDirectory answers Services from a filesystem catalog instead
// of a static set.
func WithServiceDirectory(dir *servicedir.Directory) Option {
	return func(s *Spooler) { s.dir = dir }
}

// New returns an empty spooler.
func New(opts ...Option) *Spooler {
	s := &Spooler{
		jobs:      make(map[print.JobID]*print.JobInfo),
		sessions:  make(map[string]*session),
		listeners: make(map[spooler.JobStateListener]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.bus == nil {
		s.bus = memory.New()
	}
	return s
}

// Bus exposes the spooler's event bus so transports can subscribe.
func (s *Spooler) Bus() jobevents.Bus { return s.bus }

// LastSession returns the document session most recently registered through
// CreateSession, so tests can drive it with a Driver.
func (s *Spooler) LastSession() spooler.DocumentSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDoc
}

// session tracks one registered document session and cancels the backing
// job if the session goes away before the job finishes.
type session struct {
	s     *Spooler
	id    string
	jobID print.JobID
}

var _ spooler.DestroyObserver = (*session)(nil)

func (ds *session) OnSessionDestroyed() {
	ds.s.mu.Lock()
	delete(ds.s.sessions, ds.id)
	job, ok := ds.s.jobs[ds.jobID]
	terminal := ok && job.State.IsTerminal()
	ds.s.mu.Unlock()

	if ok && !terminal {
		ds.s.SetJobState(ds.jobID, print.JobStateCancelled)
	}
}

type configHandle struct {
	err error
}

func (h *configHandle) Present(ctx context.Context) error { return h.err }

func (s *Spooler) CreateSession(ctx context.Context, req *spooler.CreateSessionRequest) (*spooler.CreateSessionResult, error) {
	if req == nil || req.Session == nil {
		return nil, fmt.Errorf("spoolertest: create session without a document session")
	}

	job := s.CreateJob(req.JobName, req.Attributes)
	ds := &session{s: s, id: req.SessionID, jobID: job.ID}

	s.mu.Lock()
	s.sessions[req.SessionID] = ds
	s.lastDoc = req.Session
	presentErr := s.PresentErr
	s.mu.Unlock()

	req.Session.RegisterObserver(ds)

	s.log.InfoContext(ctx, "spoolertest.session.created",
		slog.String("session_id", req.SessionID),
		slog.String("job_id", string(job.ID)),
		slog.String("caller_app", req.Caller.App))

	return &spooler.CreateSessionResult{
		Job:    &job,
		Config: &configHandle{err: presentErr},
	}, nil
}

// CreateJob adds a job without registering a local document session. The
// WebSocket server uses it for sessions living on the far side of a
// connection; tests use it to seed the job table.
func (s *Spooler) CreateJob(jobName string, attrs *print.Attributes) print.JobInfo {
	job := &print.JobInfo{
		ID:         print.NewJobID(),
		Label:      jobName,
		State:      print.JobStateCreated,
		CreatedAt:  time.Now().UTC(),
		Attributes: attrs,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	s.publish(job.ID, print.JobStateCreated)
	return *job
}

func (s *Spooler) Job(ctx context.Context, id print.JobID) (*print.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", spooler.ErrJobNotFound, id)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// Jobs lists the table in creation order.
func (s *Spooler) Jobs(ctx context.Context) ([]print.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]print.JobInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out, nil
}

func (s *Spooler) CancelJob(ctx context.Context, id print.JobID) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	terminal := ok && job.State.IsTerminal()
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", spooler.ErrJobNotFound, id)
	}
	if terminal {
		return nil
	}
	s.SetJobState(id, print.JobStateCancelled)
	return nil
}

func (s *Spooler) RestartJob(ctx context.Context, id print.JobID) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	failed := ok && job.State == print.JobStateFailed
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", spooler.ErrJobNotFound, id)
	}
	if !failed {
		return nil
	}
	s.SetJobState(id, print.JobStateQueued)
	return nil
}

func (s *Spooler) Services(ctx context.Context) ([]print.ServiceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != nil {
		return s.dir.Services(), nil
	}
	out := make([]print.ServiceInfo, len(s.services))
	copy(out, s.services)
	return out, nil
}

func (s *Spooler) RegisterJobListener(ctx context.Context, l spooler.JobStateListener) error {
	if l == nil {
		return fmt.Errorf("spoolertest: nil job state listener")
	}
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Spooler) UnregisterJobListener(ctx context.Context, l spooler.JobStateListener) error {
	s.mu.Lock()
	delete(s.listeners, l)
	s.mu.Unlock()
	return nil
}

// SetJobState moves a job to the given state, publishes the transition on
// the bus, and notifies registered listeners inline.
func (s *Spooler) SetJobState(id print.JobID, state print.JobState) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		job.State = state
	}
	listeners := make([]spooler.JobStateListener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.publish(id, state)
	for _, l := range listeners {
		l.OnJobStateChanged(id)
	}
}

// WaitForJobState polls until the job reaches the wanted state or the
// context expires.
func (s *Spooler) WaitForJobState(ctx context.Context, id print.JobID, want print.JobState) error {
	for {
		s.mu.Lock()
		job, ok := s.jobs[id]
		state := print.JobState("")
		if ok {
			state = job.State
		}
		s.mu.Unlock()

		if ok && state == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("job %s never reached %q (last %q): %w", id, want, state, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *Spooler) publish(id print.JobID, state print.JobState) {
	if _, err := s.bus.Publish(context.Background(), jobevents.Event{JobID: id, State: state}); err != nil {
		s.log.Warn("spoolertest.publish_failed",
			slog.String("job_id", string(id)),
			slog.String("state", string(state)),
			slog.String("error", err.Error()))
	}
}
