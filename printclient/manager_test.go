package printclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/internal/delegate"
	"github.com/spoolworks/printspool-go/lifecycle"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type configFake struct {
	presentErr error
	presented  int
}

func (c *configFake) Present(ctx context.Context) error {
	c.presented++
	return c.presentErr
}

type serviceFake struct {
	mu sync.Mutex

	createErr  error
	createRes  *spooler.CreateSessionResult
	lastCreate *spooler.CreateSessionRequest

	jobErr   error
	jobInfo  *print.JobInfo
	jobCalls int

	jobs     []print.JobInfo
	services []print.ServiceInfo

	cancelled []print.JobID
	restarted []print.JobID

	registered   []spooler.JobStateListener
	unregistered []spooler.JobStateListener
}

func (s *serviceFake) CreateSession(ctx context.Context, req *spooler.CreateSessionRequest) (*spooler.CreateSessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCreate = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createRes, nil
}

func (s *serviceFake) Job(ctx context.Context, id print.JobID) (*print.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobCalls++
	if s.jobErr != nil {
		return nil, s.jobErr
	}
	return s.jobInfo, nil
}

func (s *serviceFake) Jobs(ctx context.Context) ([]print.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs, nil
}

func (s *serviceFake) CancelJob(ctx context.Context, id print.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *serviceFake) RestartJob(ctx context.Context, id print.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarted = append(s.restarted, id)
	return nil
}

func (s *serviceFake) Services(ctx context.Context) ([]print.ServiceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services, nil
}

func (s *serviceFake) RegisterJobListener(ctx context.Context, l spooler.JobStateListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, l)
	return nil
}

func (s *serviceFake) UnregisterJobListener(ctx context.Context, l spooler.JobStateListener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregistered = append(s.unregistered, l)
	return nil
}

func (s *serviceFake) lastRegistered(t *testing.T) spooler.JobStateListener {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.registered) == 0 {
		t.Fatal("no listener registered with the service")
	}
	return s.registered[len(s.registered)-1]
}

type listenerFake struct {
	events chan print.JobID
}

func newListenerFake() *listenerFake {
	return &listenerFake{events: make(chan print.JobID, 4)}
}

func (l *listenerFake) OnJobStateChanged(id print.JobID) { l.events <- id }

func happyResult(state print.JobState) (*spooler.CreateSessionResult, *configFake) {
	cfg := &configFake{}
	return &spooler.CreateSessionResult{
		Job:    &print.JobInfo{ID: "job-1", Label: "quarterly report", State: state},
		Config: cfg,
	}, cfg
}

func noopAdapter() document.Adapter {
	return document.AdapterFuncs{}
}

func newTestManager(t *testing.T, svc spooler.Service) (*Manager, *lifecycle.Owner) {
	t.Helper()
	owner := lifecycle.NewOwner()
	t.Cleanup(owner.Destroy)
	m := New(svc,
		WithOwner(owner),
		WithLogger(testLogger()),
		WithCaller(spooler.Caller{App: "com.example.editor", User: "alex"}))
	t.Cleanup(func() { m.Close() })
	return m, owner
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected %s", what)
	default:
	}
}

func TestPrint_CreatesJobAndPresentsConfig(t *testing.T) {
	svc := &serviceFake{}
	res, cfg := happyResult(print.JobStateCreated)
	svc.createRes = res
	m, _ := newTestManager(t, svc)

	job, err := m.Print(testContext(t), "quarterly report", noopAdapter(), &print.Attributes{ColorMode: print.ColorModeColor})
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if job.ID() != "job-1" {
		t.Fatalf("job id = %s, want job-1", job.ID())
	}
	if cfg.presented != 1 {
		t.Fatalf("config presented %d times, want 1", cfg.presented)
	}

	req := svc.lastCreate
	if req.JobName != "quarterly report" {
		t.Fatalf("job name = %q", req.JobName)
	}
	if req.Session == nil {
		t.Fatal("no document session passed to the spooler")
	}
	if req.Caller.App != "com.example.editor" {
		t.Fatalf("caller app = %q", req.Caller.App)
	}
	if req.Attributes == nil || req.Attributes.ColorMode != print.ColorModeColor {
		t.Fatalf("attributes = %+v", req.Attributes)
	}
}

func TestPrint_PreconditionViolations(t *testing.T) {
	svc := &serviceFake{}
	svc.createRes, _ = happyResult(print.JobStateCreated)
	m, _ := newTestManager(t, svc)

	if _, err := m.Print(testContext(t), "  ", noopAdapter(), nil); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("blank name error = %v, want ErrEmptyJobName", err)
	}
	if _, err := m.Print(testContext(t), "doc", nil, nil); !errors.Is(err, ErrNilAdapter) {
		t.Fatalf("nil adapter error = %v, want ErrNilAdapter", err)
	}

	headless := New(svc, WithLogger(testLogger()))
	defer headless.Close()
	if _, err := headless.Print(testContext(t), "doc", noopAdapter(), nil); !errors.Is(err, ErrNoUISession) {
		t.Fatalf("headless error = %v, want ErrNoUISession", err)
	}

	deadOwner := lifecycle.NewOwner()
	deadOwner.Destroy()
	dead := New(svc, WithOwner(deadOwner), WithLogger(testLogger()))
	defer dead.Close()
	if _, err := dead.Print(testContext(t), "doc", noopAdapter(), nil); !errors.Is(err, ErrNoUISession) {
		t.Fatalf("destroyed owner error = %v, want ErrNoUISession", err)
	}
}

func TestPrint_NoService(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.Print(testContext(t), "doc", noopAdapter(), nil); !errors.Is(err, spooler.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestPrint_MissingJobOrConfigMeansNoJob(t *testing.T) {
	svc := &serviceFake{}
	svc.createRes = &spooler.CreateSessionResult{Job: &print.JobInfo{ID: "job-1"}}
	m, _ := newTestManager(t, svc)

	if _, err := m.Print(testContext(t), "doc", noopAdapter(), nil); !errors.Is(err, ErrNoJobCreated) {
		t.Fatalf("err = %v, want ErrNoJobCreated", err)
	}
}

func TestPrint_CreateSessionError(t *testing.T) {
	svc := &serviceFake{createErr: errors.New("spooler offline")}
	m, _ := newTestManager(t, svc)

	_, err := m.Print(testContext(t), "doc", noopAdapter(), nil)
	if err == nil || !errors.Is(err, svc.createErr) {
		t.Fatalf("err = %v, want wrapped create error", err)
	}
}

func TestPrint_PresentFailureLeavesSessionRegistered(t *testing.T) {
	svc := &serviceFake{}
	res, cfg := happyResult(print.JobStateCreated)
	cfg.presentErr = errors.New("dialog dismissed by system")
	svc.createRes = res
	m, _ := newTestManager(t, svc)

	_, err := m.Print(testContext(t), "doc", noopAdapter(), nil)
	if !errors.Is(err, ErrNoJobCreated) {
		t.Fatalf("err = %v, want ErrNoJobCreated", err)
	}

	sess, ok := svc.lastCreate.Session.(*delegate.Delegate)
	if !ok {
		t.Fatalf("session type = %T", svc.lastCreate.Session)
	}
	if sess.Destroyed() {
		t.Fatal("session must stay registered after a presentation failure")
	}
}

func TestQueries_NoServiceDegradeToEmpty(t *testing.T) {
	m, _ := newTestManager(t, nil)

	jobs, err := m.Jobs(testContext(t))
	if err != nil || len(jobs) != 0 {
		t.Fatalf("Jobs = %v, %v; want empty, nil", jobs, err)
	}
	services, err := m.Services(testContext(t))
	if err != nil || len(services) != 0 {
		t.Fatalf("Services = %v, %v; want empty, nil", services, err)
	}
	if err := m.CancelJob(testContext(t), "job-1"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if err := m.RestartJob(testContext(t), "job-1"); err != nil {
		t.Fatalf("RestartJob: %v", err)
	}
	if _, err := m.Job(testContext(t), "job-1"); !errors.Is(err, spooler.ErrUnavailable) {
		t.Fatalf("Job err = %v, want ErrUnavailable", err)
	}
}

func TestJob_InfoRefreshesUntilTerminal(t *testing.T) {
	svc := &serviceFake{}
	svc.createRes, _ = happyResult(print.JobStateCreated)
	m, _ := newTestManager(t, svc)

	job, err := m.Print(testContext(t), "doc", noopAdapter(), nil)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}

	svc.jobInfo = &print.JobInfo{ID: "job-1", State: print.JobStateStarted}
	info, err := job.Info(testContext(t))
	if err != nil || info.State != print.JobStateStarted {
		t.Fatalf("Info = %+v, %v", info, err)
	}

	svc.jobInfo = &print.JobInfo{ID: "job-1", State: print.JobStateCompleted}
	info, err = job.Info(testContext(t))
	if err != nil || info.State != print.JobStateCompleted {
		t.Fatalf("Info = %+v, %v", info, err)
	}

	// Terminal state is cached; no further fetches.
	if _, err := job.Info(testContext(t)); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if svc.jobCalls != 2 {
		t.Fatalf("job fetches = %d, want 2", svc.jobCalls)
	}
}

func TestJob_CancelSkipsTerminal(t *testing.T) {
	svc := &serviceFake{}
	svc.createRes, _ = happyResult(print.JobStateCompleted)
	m, _ := newTestManager(t, svc)

	job, err := m.Print(testContext(t), "doc", noopAdapter(), nil)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if err := job.Cancel(testContext(t)); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(svc.cancelled) != 0 {
		t.Fatalf("cancel forwarded for terminal job: %v", svc.cancelled)
	}
}

func TestJob_RestartOnlyWhenFailed(t *testing.T) {
	svc := &serviceFake{}
	svc.createRes, _ = happyResult(print.JobStateFailed)
	m, _ := newTestManager(t, svc)

	job, err := m.Print(testContext(t), "doc", noopAdapter(), nil)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if err := job.Restart(testContext(t)); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if len(svc.restarted) != 1 || svc.restarted[0] != "job-1" {
		t.Fatalf("restarted = %v", svc.restarted)
	}

	svc.createRes, _ = happyResult(print.JobStateQueued)
	queued, err := m.Print(testContext(t), "doc2", noopAdapter(), nil)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if err := queued.Restart(testContext(t)); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if len(svc.restarted) != 1 {
		t.Fatalf("restart forwarded for non-failed job: %v", svc.restarted)
	}

	// A stale non-terminal cache must not block the restart: the handle
	// refreshes and sees the failure the spooler reported meanwhile.
	svc.jobInfo = &print.JobInfo{ID: "job-1", State: print.JobStateFailed}
	if err := queued.Restart(testContext(t)); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if len(svc.restarted) != 2 {
		t.Fatalf("restarted = %v, want second restart after refresh", svc.restarted)
	}
}

func TestRegisterJobListener_DeliversSerially(t *testing.T) {
	svc := &serviceFake{}
	m, _ := newTestManager(t, svc)
	l := newListenerFake()

	reg, err := m.RegisterJobListener(testContext(t), l)
	if err != nil {
		t.Fatalf("RegisterJobListener: %v", err)
	}
	defer reg.Close(context.Background())

	fwd := svc.lastRegistered(t)
	fwd.OnJobStateChanged("job-9")
	if id := recv(t, l.events, "job state event"); id != "job-9" {
		t.Fatalf("event id = %s", id)
	}
}

func TestListenerRegistration_CloseStopsDelivery(t *testing.T) {
	svc := &serviceFake{}
	m, _ := newTestManager(t, svc)
	l := newListenerFake()

	reg, err := m.RegisterJobListener(testContext(t), l)
	if err != nil {
		t.Fatalf("RegisterJobListener: %v", err)
	}
	fwd := svc.lastRegistered(t)

	if err := reg.Close(testContext(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(svc.unregistered) != 1 {
		t.Fatalf("unregistered = %d listeners, want 1", len(svc.unregistered))
	}

	// Events delivered after close are dropped without touching the
	// application listener.
	fwd.OnJobStateChanged("job-9")
	time.Sleep(50 * time.Millisecond)
	expectNone(t, l.events, "event after close")

	if err := reg.Close(testContext(t)); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(svc.unregistered) != 1 {
		t.Fatal("Close must be idempotent")
	}
}

func TestRegisterJobListener_NoService(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.RegisterJobListener(testContext(t), newListenerFake()); !errors.Is(err, spooler.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
