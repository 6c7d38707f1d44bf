package printclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/internal/delegate"
	"github.com/spoolworks/printspool-go/internal/logctx"
	"github.com/spoolworks/printspool-go/internal/runloop"
	"github.com/spoolworks/printspool-go/lifecycle"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

var (
	// ErrNoJobCreated indicates the print flow ended without a created job:
	// the spooler returned no descriptor or configuration, or the
	// configuration could not be presented.
	ErrNoJobCreated = errors.New("printclient: no job created")
	// ErrEmptyJobName rejects a print flow started with a blank job name.
	ErrEmptyJobName = errors.New("printclient: job name must not be empty")
	// ErrNilAdapter rejects a print flow started without a document adapter.
	ErrNilAdapter = errors.New("printclient: document adapter must not be nil")
	// ErrNoUISession rejects printing from a manager with no live UI
	// session to bind the document session's lifetime to.
	ErrNoUISession = errors.New("printclient: no live ui session")
)

// Manager is the application's handle on the print subsystem. Construct
// with New; the zero value is not usable.
type Manager struct {
	service spooler.Service
	owner   *lifecycle.Owner
	log     *slog.Logger
	caller  spooler.Caller
	loop    *runloop.Loop
}

// Option customizes a Manager.
type Option func(*Manager)

// WithOwner binds the manager to a UI session. Printing requires one; pure
// query use does not.
func WithOwner(owner *lifecycle.Owner) Option {
	return func(m *Manager) { m.owner = owner }
}

// WithLogger sets the logger. Session and operation attributes are appended
// automatically.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithCaller overrides the caller identity attached to created jobs. The
// default uses the executable name as the application.
func WithCaller(c spooler.Caller) Option {
	return func(m *Manager) { m.caller = c }
}

// New returns a Manager backed by service. A nil service is a platform
// without print support; every operation degrades as documented instead of
// panicking.
func New(service spooler.Service, opts ...Option) *Manager {
	m := &Manager{
		service: service,
		caller:  spooler.Caller{App: executableName()},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = slog.New(logctx.Handler{Handler: m.log.Handler()})
	m.loop = runloop.New()
	return m
}

// Close stops the listener dispatch loop. Open registrations stop
// delivering; the spooler-side subscriptions are released by closing the
// registrations or the transport.
func (m *Manager) Close() error {
	m.loop.Close()
	return nil
}

func executableName() string {
	exe, err := os.Executable()
	if err != nil {
		return "unknown"
	}
	return filepath.Base(exe)
}

// Print starts a print flow: it builds the document session delegate,
// registers it with the spooler under jobName, presents the returned
// configuration to the user, and returns the created job.
//
// Precondition violations (empty name, nil adapter, no live UI session) are
// returned to the caller directly. A missing service yields
// spooler.ErrUnavailable.
func (m *Manager) Print(ctx context.Context, jobName string, adapter document.Adapter, attrs *print.Attributes) (*Job, error) {
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.print.unavailable")
		return nil, spooler.ErrUnavailable
	}
	if strings.TrimSpace(jobName) == "" {
		return nil, ErrEmptyJobName
	}
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if m.owner == nil {
		return nil, fmt.Errorf("%w: manager has no lifecycle owner", ErrNoUISession)
	}
	if m.owner.Destroyed() {
		return nil, fmt.Errorf("%w: owner already destroyed", ErrNoUISession)
	}

	sessionID := uuid.NewString()
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID, JobName: jobName})

	sess, err := delegate.New(delegate.Config{
		SessionID: sessionID,
		JobName:   jobName,
		Adapter:   adapter,
		Owner:     m.owner,
		Logger:    m.log,
	})
	if err != nil {
		return nil, fmt.Errorf("construct document session: %w", err)
	}

	res, err := m.service.CreateSession(ctx, &spooler.CreateSessionRequest{
		SessionID:  sessionID,
		JobName:    jobName,
		Session:    sess,
		Attributes: attrs,
		Caller:     m.caller,
	})
	if err != nil {
		return nil, fmt.Errorf("create print session: %w", err)
	}
	if res == nil || res.Job == nil || res.Config == nil {
		m.log.WarnContext(ctx, "printclient.print.no_job_created")
		return nil, ErrNoJobCreated
	}

	if err := res.Config.Present(ctx); err != nil {
		// The session stays registered with the spooler while nothing local
		// references it anymore; it is only torn down when the lifecycle
		// owner is destroyed. Known leak path, kept rather than guessed
		// around.
		m.log.ErrorContext(ctx, "printclient.print.present_config_failed",
			slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: present configuration: %v", ErrNoJobCreated, err)
	}

	m.log.InfoContext(ctx, "printclient.print.job_created",
		slog.String("job_id", string(res.Job.ID)),
		slog.String("state", string(res.Job.State)))
	return newJob(m, res.Job), nil
}

// Job returns the current descriptor for one job.
func (m *Manager) Job(ctx context.Context, id print.JobID) (*print.JobInfo, error) {
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.job.unavailable", slog.String("job_id", string(id)))
		return nil, spooler.ErrUnavailable
	}
	return m.service.Job(ctx, id)
}

// Jobs returns the caller's jobs. Without a service it returns an empty
// slice and no error.
func (m *Manager) Jobs(ctx context.Context) ([]print.JobInfo, error) {
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.jobs.unavailable")
		return nil, nil
	}
	return m.service.Jobs(ctx)
}

// CancelJob forwards a cancel request. Without a service it is a logged
// no-op.
func (m *Manager) CancelJob(ctx context.Context, id print.JobID) error {
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.cancel_job.unavailable", slog.String("job_id", string(id)))
		return nil
	}
	return m.service.CancelJob(ctx, id)
}

// RestartJob forwards a restart request. Without a service it is a logged
// no-op.
func (m *Manager) RestartJob(ctx context.Context, id print.JobID) error {
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.restart_job.unavailable", slog.String("job_id", string(id)))
		return nil
	}
	return m.service.RestartJob(ctx, id)
}

// Services returns the installed print services. Without a service backend
// it returns an empty slice and no error.
func (m *Manager) Services(ctx context.Context) ([]print.ServiceInfo, error) {
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.services.unavailable")
		return nil, nil
	}
	return m.service.Services(ctx)
}
