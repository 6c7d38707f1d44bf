package spoolws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spoolworks/printspool-go/internal/wire"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

func (c *Client) CreateSession(ctx context.Context, req *spooler.CreateSessionRequest) (*spooler.CreateSessionResult, error) {
	if req == nil || req.Session == nil {
		return nil, fmt.Errorf("spoolws: create session without a document session")
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("spoolws: create session without a session id")
	}

	// Register before asking: the spooler is free to start driving the
	// session the moment it answers, and notifications can overtake the
	// response on the read loop.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: connection closed", spooler.ErrUnavailable)
	}
	if _, exists := c.sessions[req.SessionID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("spoolws: session id %q already registered", req.SessionID)
	}
	c.sessions[req.SessionID] = req.Session
	c.mu.Unlock()

	caller := req.Caller
	if caller.App == "" {
		caller = c.caller
	}

	var res wire.CreateSessionResult
	err := c.call(ctx, wire.MethodCreateSession, &wire.CreateSessionParams{
		SessionID:  req.SessionID,
		JobName:    req.JobName,
		Attributes: req.Attributes,
		CallerApp:  caller.App,
		CallerUser: caller.User,
	}, &res)
	if err != nil {
		// The request never took effect, so the local registration is
		// garbage rather than a live session.
		c.dropSession(req.SessionID)
		return nil, err
	}

	// The spooler holds a session either way now; hook teardown up so the
	// local registration is dropped and the spooler told when the owner
	// destroys the session.
	req.Session.RegisterObserver(&sessionObserver{c: c, sessionID: req.SessionID})

	if res.Job == nil {
		return nil, nil
	}

	return &spooler.CreateSessionResult{
		Job: res.Job,
		Config: &urlConfigHandle{
			log: c.log,
			url: res.ConfigURL,
		},
	}, nil
}

func (c *Client) Job(ctx context.Context, id print.JobID) (*print.JobInfo, error) {
	var res wire.JobResult
	if err := c.call(ctx, wire.MethodGetJob, &wire.JobParams{JobID: id}, &res); err != nil {
		return nil, err
	}
	if res.Job == nil {
		return nil, fmt.Errorf("%w: %s", spooler.ErrJobNotFound, id)
	}
	return res.Job, nil
}

func (c *Client) Jobs(ctx context.Context) ([]print.JobInfo, error) {
	var res wire.ListJobsResult
	if err := c.call(ctx, wire.MethodListJobs, nil, &res); err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

func (c *Client) CancelJob(ctx context.Context, id print.JobID) error {
	return c.call(ctx, wire.MethodCancelJob, &wire.JobParams{JobID: id}, nil)
}

func (c *Client) RestartJob(ctx context.Context, id print.JobID) error {
	return c.call(ctx, wire.MethodRestartJob, &wire.JobParams{JobID: id}, nil)
}

func (c *Client) Services(ctx context.Context) ([]print.ServiceInfo, error) {
	var res wire.ListServicesResult
	if err := c.call(ctx, wire.MethodListServices, nil, &res); err != nil {
		return nil, err
	}
	return res.Services, nil
}

// RegisterJobListener adds the listener and, for the first one, asks the
// spooler to stream job state changes over this connection.
func (c *Client) RegisterJobListener(ctx context.Context, l spooler.JobStateListener) error {
	if l == nil {
		return fmt.Errorf("spoolws: nil job state listener")
	}

	c.mu.Lock()
	if _, dup := c.listeners[l]; dup {
		c.mu.Unlock()
		return nil
	}
	c.listeners[l] = struct{}{}
	needWatch := !c.watching
	c.mu.Unlock()

	if !needWatch {
		return nil
	}
	if err := c.call(ctx, wire.MethodWatchJobs, nil, nil); err != nil {
		c.mu.Lock()
		delete(c.listeners, l)
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.watching = true
	c.mu.Unlock()
	return nil
}

// UnregisterJobListener removes the listener; when none remain the watch
// subscription is dropped.
func (c *Client) UnregisterJobListener(ctx context.Context, l spooler.JobStateListener) error {
	c.mu.Lock()
	delete(c.listeners, l)
	stopWatch := len(c.listeners) == 0 && c.watching
	if stopWatch {
		c.watching = false
	}
	c.mu.Unlock()

	if !stopWatch {
		return nil
	}
	if err := c.call(ctx, wire.MethodUnwatchJobs, nil, nil); err != nil {
		c.log.WarnContext(ctx, "spoolws.unwatch_failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// urlConfigHandle is the transport's stand-in for the spooler's
// configuration surface: it cannot render a remote dialog, so presenting
// just records where the configuration lives.
type urlConfigHandle struct {
	log *slog.Logger
	url string
}

var _ spooler.ConfigHandle = (*urlConfigHandle)(nil)

func (h *urlConfigHandle) Present(ctx context.Context) error {
	h.log.InfoContext(ctx, "spoolws.config.present", slog.String("config_url", h.url))
	return nil
}

// sessionObserver forwards local session teardown to the spooler and drops
// the transport's registration.
type sessionObserver struct {
	c         *Client
	sessionID string
}

var _ spooler.DestroyObserver = (*sessionObserver)(nil)

func (o *sessionObserver) OnSessionDestroyed() {
	o.c.dropSession(o.sessionID)
	if err := o.c.notify(wire.MethodSessionDestroyed, &wire.SessionDestroyedParams{SessionID: o.sessionID}); err != nil {
		o.c.log.Debug("spoolws.destroy_notify_failed",
			slog.String("session_id", o.sessionID),
			slog.String("error", err.Error()))
	}
}
