package spooler

import (
	"context"
	"errors"

	"github.com/spoolworks/printspool-go/print"
)

var (
	// ErrUnavailable indicates no spooler service is reachable; pass-through
	// operations degrade instead of failing hard.
	ErrUnavailable = errors.New("spooler: service unavailable")
	// ErrJobNotFound indicates the referenced job id is unknown.
	ErrJobNotFound = errors.New("spooler: job not found")
	// ErrSessionDestroyed is the cancellation cause used when a document
	// session is torn down while an operation is in flight.
	ErrSessionDestroyed = errors.New("spooler: document session destroyed")
	// ErrCancelRequested is the cancellation cause used when the remote side
	// triggers the cancellation bridge of an outstanding operation.
	ErrCancelRequested = errors.New("spooler: cancellation requested")
)

// Caller identifies the printing application and user to the spooler. It is
// attached to created jobs and carried as token claims on wire transports.
type Caller struct {
	App  string `json:"app,omitzero"`
	User string `json:"user,omitzero"`
}

// ConfigHandle is the user-facing configuration surface returned by
// CreateSession (conceptually the print dialog). The creation flow presents
// it exactly once; a presentation failure aborts the flow.
type ConfigHandle interface {
	Present(ctx context.Context) error
}

// CreateSessionRequest carries everything the spooler needs to open a
// document session. SessionID is assigned by the client so transports can
// register the session before the spooler starts driving it.
type CreateSessionRequest struct {
	SessionID  string
	JobName    string
	Session    DocumentSession
	Attributes *print.Attributes
	Caller     Caller
}

// CreateSessionResult is the spooler's answer. Both fields must be non-nil
// for the session to count as created.
type CreateSessionResult struct {
	Job    *print.JobInfo
	Config ConfigHandle
}

// Service is the client's view of a print spooler.
type Service interface {
	// CreateSession registers the document session with the spooler and
	// creates the job backing it.
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResult, error)

	// Job returns the descriptor for one job. Unknown ids yield
	// ErrJobNotFound.
	Job(ctx context.Context, id print.JobID) (*print.JobInfo, error)

	// Jobs returns the caller's jobs.
	Jobs(ctx context.Context) ([]print.JobInfo, error)

	// CancelJob asks the spooler to cancel a job. The request is forwarded
	// verbatim; whether cancellation is possible is the spooler's call.
	CancelJob(ctx context.Context, id print.JobID) error

	// RestartJob asks the spooler to restart a failed job.
	RestartJob(ctx context.Context, id print.JobID) error

	// Services returns the installed print services.
	Services(ctx context.Context) ([]print.ServiceInfo, error)

	// RegisterJobListener subscribes the listener to job state transitions.
	// The same listener value must later be passed to UnregisterJobListener.
	RegisterJobListener(ctx context.Context, l JobStateListener) error

	// UnregisterJobListener removes a previously registered listener.
	UnregisterJobListener(ctx context.Context, l JobStateListener) error
}

// JobStateListener receives job state-change events. Implementations must
// not block: transports deliver from their read loops.
type JobStateListener interface {
	OnJobStateChanged(id print.JobID)
}
