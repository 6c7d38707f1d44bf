package spoolertest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/spoolworks/printspool-go/internal/callertoken"
	"github.com/spoolworks/printspool-go/internal/logctx"
	"github.com/spoolworks/printspool-go/internal/wire"
	"github.com/spoolworks/printspool-go/jobevents"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

// FlowConfig controls how the server drives sessions it accepts. The
// default flow is start, one layout, one write of all pages, finish, moving
// the job through queued, started and completed.
type FlowConfig struct {
	// CancelLayout cancels the first layout right after its acknowledgement
	// instead of waiting for the result.
	CancelLayout bool
	// CancelWrite cancels the first write right after its acknowledgement.
	CancelWrite bool
	// WritePages is the page set requested on the write pass. Ranges are
	// normalized before they go on the wire. Empty means all pages.
	WritePages []print.PageRange
}

func (f FlowConfig) writePages() []print.PageRange {
	pages := print.NormalizePageRanges(f.WritePages)
	if len(pages) == 0 {
		return []print.PageRange{print.AllPages()}
	}
	return pages
}

// Server exposes a Spooler over the spool WebSocket protocol. It implements
// http.Handler; mount it on an httptest.Server and dial it with the spoolws
// client. Connections are authorized with a caller token when an Authority
// is configured.
type Server struct {
	log      *slog.Logger
	spooler  *Spooler
	auth     *callertoken.Authority
	flow     FlowConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	rendered map[print.JobID][]byte
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. Defaults to slog.Default().
func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithAuthority makes the server require a valid caller token on every
// connection.
func WithAuthority(auth *callertoken.Authority) ServerOption {
	return func(s *Server) { s.auth = auth }
}

// WithFlow overrides the document drive behavior.
func WithFlow(flow FlowConfig) ServerOption {
	return func(s *Server) { s.flow = flow }
}

// NewServer wraps a Spooler.
func NewServer(sp *Spooler, opts ...ServerOption) *Server {
	s := &Server{
		spooler:  sp,
		rendered: make(map[print.JobID][]byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = slog.New(logctx.Handler{Handler: s.log.Handler()})
	return s
}

// Rendered returns the bytes the given job's write produced, or nil if the
// job never finished a write.
func (s *Server) Rendered(id print.JobID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.rendered[id]...)
}

func (s *Server) recordRendered(id print.JobID, data []byte) {
	s.mu.Lock()
	s.rendered[id] = data
	s.mu.Unlock()
}

func (s *Server) authorize(r *http.Request) (spooler.Caller, error) {
	if s.auth == nil {
		return spooler.Caller{}, nil
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return spooler.Caller{}, fmt.Errorf("%w: missing bearer token", callertoken.ErrUnauthorized)
	}
	return s.auth.Verify(strings.TrimPrefix(header, prefix))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authorize(r)
	if err != nil {
		s.log.Warn("spoolertest.ws.unauthorized",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("spoolertest.ws.upgrade_failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{
		RemoteAddr: r.RemoteAddr,
		CallerApp:  caller.App,
	})

	c := &conn{
		srv:      s,
		ws:       ws,
		log:      s.log,
		caller:   caller,
		host:     r.Host,
		sessions: make(map[string]*wsSession),
	}

	s.log.InfoContext(ctx, "spoolertest.ws.connected")
	c.readLoop(ctx)

	cancel()
	c.stopWatch()
	_ = ws.Close()

	// The client is gone; whatever it left mid-flight is not finishing.
	for _, sess := range c.sessions {
		s.cancelIfRunning(sess.jobID)
	}
	s.log.InfoContext(ctx, "spoolertest.ws.disconnected")
}

func (s *Server) cancelIfRunning(id print.JobID) {
	job, err := s.spooler.Job(context.Background(), id)
	if err != nil || job.State.IsTerminal() {
		return
	}
	s.spooler.SetJobState(id, print.JobStateCancelled)
}

// wsSession is the server's record of one document session driven over the
// connection. All fields are owned by the read loop goroutine.
type wsSession struct {
	id        string
	jobID     print.JobID
	attrs     *print.Attributes
	seq       int32
	layoutSeq int32
	writeSeq  int32
	buf       bytes.Buffer
	cancelled bool
}

func (sess *wsSession) nextSeq() int32 {
	sess.seq++
	return sess.seq
}

// conn handles one upgraded connection. The read loop owns the sessions
// map; writes from the watch pump and the read loop are serialized by
// writeMu.
type conn struct {
	srv    *Server
	ws     *websocket.Conn
	log    *slog.Logger
	caller spooler.Caller
	host   string

	writeMu sync.Mutex

	sessions    map[string]*wsSession
	watchCancel context.CancelFunc
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.DebugContext(ctx, "spoolertest.ws.read_ended", slog.String("error", err.Error()))
			}
			return
		}

		var msg wire.AnyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WarnContext(ctx, "spoolertest.ws.bad_message", slog.String("error", err.Error()))
			continue
		}

		switch msg.Type() {
		case "request":
			c.handleRequest(ctx, msg.AsRequest())
		case "notification":
			c.handleNotification(ctx, msg.AsRequest())
		default:
			// The server never issues requests, so responses are noise.
			c.log.WarnContext(ctx, "spoolertest.ws.unexpected_response")
		}
	}
}

func (c *conn) send(ctx context.Context, msg any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *conn) notify(ctx context.Context, method string, params any) {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		c.log.ErrorContext(ctx, "spoolertest.ws.notify_marshal_failed",
			slog.String("method", method),
			slog.String("error", err.Error()))
		return
	}
	if err := c.send(ctx, msg); err != nil {
		c.log.DebugContext(ctx, "spoolertest.ws.notify_failed",
			slog.String("method", method),
			slog.String("error", err.Error()))
	}
}

func (c *conn) respond(ctx context.Context, id *wire.RequestID, result any) {
	msg, err := wire.NewResultResponse(id, result)
	if err != nil {
		c.log.ErrorContext(ctx, "spoolertest.ws.respond_marshal_failed", slog.String("error", err.Error()))
		c.respondErr(ctx, id, wire.ErrorCodeInternalError, "marshal result")
		return
	}
	if err := c.send(ctx, msg); err != nil {
		c.log.DebugContext(ctx, "spoolertest.ws.respond_failed", slog.String("error", err.Error()))
	}
}

func (c *conn) respondErr(ctx context.Context, id *wire.RequestID, code wire.ErrorCode, message string) {
	if err := c.send(ctx, wire.NewErrorResponse(id, code, message, nil)); err != nil {
		c.log.DebugContext(ctx, "spoolertest.ws.respond_failed", slog.String("error", err.Error()))
	}
}

func (c *conn) handleRequest(ctx context.Context, req *wire.Request) {
	switch req.Method {
	case wire.MethodCreateSession:
		c.handleCreateSession(ctx, req)
	case wire.MethodGetJob:
		var p wire.JobParams
		if err := req.UnmarshalParams(&p); err != nil {
			c.respondErr(ctx, req.ID, wire.ErrorCodeInvalidParams, err.Error())
			return
		}
		job, err := c.srv.spooler.Job(ctx, p.JobID)
		if err != nil {
			c.respondErr(ctx, req.ID, wire.ErrorCodeJobNotFound, err.Error())
			return
		}
		c.respond(ctx, req.ID, &wire.JobResult{Job: job})
	case wire.MethodListJobs:
		jobs, err := c.srv.spooler.Jobs(ctx)
		if err != nil {
			c.respondErr(ctx, req.ID, wire.ErrorCodeInternalError, err.Error())
			return
		}
		c.respond(ctx, req.ID, &wire.ListJobsResult{Jobs: jobs})
	case wire.MethodCancelJob:
		var p wire.JobParams
		if err := req.UnmarshalParams(&p); err != nil {
			c.respondErr(ctx, req.ID, wire.ErrorCodeInvalidParams, err.Error())
			return
		}
		if err := c.srv.spooler.CancelJob(ctx, p.JobID); err != nil {
			c.respondErr(ctx, req.ID, c.errorCode(err), err.Error())
			return
		}
		c.respond(ctx, req.ID, struct{}{})
	case wire.MethodRestartJob:
		var p wire.JobParams
		if err := req.UnmarshalParams(&p); err != nil {
			c.respondErr(ctx, req.ID, wire.ErrorCodeInvalidParams, err.Error())
			return
		}
		if err := c.srv.spooler.RestartJob(ctx, p.JobID); err != nil {
			c.respondErr(ctx, req.ID, c.errorCode(err), err.Error())
			return
		}
		c.respond(ctx, req.ID, struct{}{})
	case wire.MethodListServices:
		services, err := c.srv.spooler.Services(ctx)
		if err != nil {
			c.respondErr(ctx, req.ID, wire.ErrorCodeInternalError, err.Error())
			return
		}
		c.respond(ctx, req.ID, &wire.ListServicesResult{Services: services})
	case wire.MethodWatchJobs:
		c.handleWatchJobs(ctx, req)
	case wire.MethodUnwatchJobs:
		c.stopWatch()
		c.respond(ctx, req.ID, struct{}{})
	default:
		c.respondErr(ctx, req.ID, wire.ErrorCodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (c *conn) errorCode(err error) wire.ErrorCode {
	if errors.Is(err, spooler.ErrJobNotFound) {
		return wire.ErrorCodeJobNotFound
	}
	return wire.ErrorCodeInternalError
}

func (c *conn) handleCreateSession(ctx context.Context, req *wire.Request) {
	var p wire.CreateSessionParams
	if err := req.UnmarshalParams(&p); err != nil {
		c.respondErr(ctx, req.ID, wire.ErrorCodeInvalidParams, err.Error())
		return
	}
	if p.SessionID == "" || p.JobName == "" {
		c.respondErr(ctx, req.ID, wire.ErrorCodeInvalidParams, "sessionId and jobName are required")
		return
	}
	if _, exists := c.sessions[p.SessionID]; exists {
		c.respondErr(ctx, req.ID, wire.ErrorCodeInvalidParams, "session id already in use")
		return
	}

	job := c.srv.spooler.CreateJob(p.JobName, p.Attributes)
	sess := &wsSession{id: p.SessionID, jobID: job.ID, attrs: p.Attributes}
	c.sessions[p.SessionID] = sess

	c.log.InfoContext(ctx, "spoolertest.ws.session_created",
		slog.String("session_id", sess.id),
		slog.String("job_id", string(job.ID)))

	c.respond(ctx, req.ID, &wire.CreateSessionResult{
		Job:       &job,
		ConfigURL: fmt.Sprintf("http://%s/config/%s", c.host, job.ID),
	})

	// Drive the document protocol. The client registered its session before
	// asking, so these may race ahead of the response; that is fine.
	c.notify(ctx, wire.MethodDocumentStart, &wire.DocumentStartParams{SessionID: sess.id})
	sess.layoutSeq = sess.nextSeq()
	c.notify(ctx, wire.MethodDocumentLayout, &wire.DocumentLayoutParams{
		SessionID:     sess.id,
		NewAttributes: sess.attrs,
		Sequence:      sess.layoutSeq,
	})
}

func (c *conn) handleWatchJobs(ctx context.Context, req *wire.Request) {
	if c.watchCancel != nil {
		c.respond(ctx, req.ID, struct{}{})
		return
	}

	stream, err := c.srv.spooler.Bus().Subscribe(ctx, "")
	if err != nil {
		c.respondErr(ctx, req.ID, wire.ErrorCodeInternalError, err.Error())
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.watchCancel = cancel
	go c.pumpJobEvents(watchCtx, stream)

	c.respond(ctx, req.ID, struct{}{})
}

func (c *conn) stopWatch() {
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
}

func (c *conn) pumpJobEvents(ctx context.Context, stream jobevents.Stream) {
	defer stream.Close()
	for {
		env, err := stream.Next(ctx)
		if err != nil {
			return
		}
		c.notify(ctx, wire.MethodJobStateChanged, &wire.JobStateChangedParams{
			JobID: env.Event.JobID,
			State: env.Event.State,
		})
	}
}

func (c *conn) handleNotification(ctx context.Context, req *wire.Request) {
	switch req.Method {
	case wire.MethodLayoutStarted:
		var p wire.OperationAckParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onLayoutStarted(ctx, p)
	case wire.MethodLayoutFinished:
		var p wire.LayoutFinishedParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onLayoutFinished(ctx, p)
	case wire.MethodLayoutFailed:
		var p wire.OperationFailedParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onOperationFailed(ctx, p.SessionID, p.Sequence, p.Reason)
	case wire.MethodLayoutCancelled:
		var p wire.OperationCancelledParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onOperationCancelled(ctx, p.SessionID, p.Sequence)
	case wire.MethodWriteStarted:
		var p wire.OperationAckParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onWriteStarted(ctx, p)
	case wire.MethodWriteData:
		var p wire.WriteDataParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onWriteData(ctx, p)
	case wire.MethodWriteFinished:
		var p wire.WriteFinishedParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onWriteFinished(ctx, p)
	case wire.MethodWriteFailed:
		var p wire.OperationFailedParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onOperationFailed(ctx, p.SessionID, p.Sequence, p.Reason)
	case wire.MethodWriteCancelled:
		var p wire.OperationCancelledParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onOperationCancelled(ctx, p.SessionID, p.Sequence)
	case wire.MethodSessionDestroyed:
		var p wire.SessionDestroyedParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.onSessionDestroyed(ctx, p)
	default:
		c.log.WarnContext(ctx, "spoolertest.ws.unknown_notification", slog.String("method", req.Method))
	}
}

func (c *conn) session(ctx context.Context, id string) *wsSession {
	sess := c.sessions[id]
	if sess == nil {
		c.log.WarnContext(ctx, "spoolertest.ws.unknown_session", slog.String("session_id", id))
	}
	return sess
}

func (c *conn) onLayoutStarted(ctx context.Context, p wire.OperationAckParams) {
	sess := c.session(ctx, p.SessionID)
	if sess == nil || p.Sequence != sess.layoutSeq {
		return
	}
	c.srv.spooler.SetJobState(sess.jobID, print.JobStateQueued)
	if c.srv.flow.CancelLayout && !sess.cancelled {
		sess.cancelled = true
		c.notify(ctx, wire.MethodDocumentCancel, &wire.DocumentCancelParams{
			SessionID: sess.id,
			Sequence:  p.Sequence,
		})
	}
}

func (c *conn) onLayoutFinished(ctx context.Context, p wire.LayoutFinishedParams) {
	sess := c.session(ctx, p.SessionID)
	if sess == nil || p.Sequence != sess.layoutSeq {
		return
	}
	c.srv.spooler.SetJobState(sess.jobID, print.JobStateStarted)

	sess.writeSeq = sess.nextSeq()
	c.notify(ctx, wire.MethodDocumentWrite, &wire.DocumentWriteParams{
		SessionID: sess.id,
		Pages:     c.srv.flow.writePages(),
		Sequence:  sess.writeSeq,
	})
}

func (c *conn) onWriteStarted(ctx context.Context, p wire.OperationAckParams) {
	sess := c.session(ctx, p.SessionID)
	if sess == nil || p.Sequence != sess.writeSeq {
		return
	}
	if c.srv.flow.CancelWrite && !sess.cancelled {
		sess.cancelled = true
		c.notify(ctx, wire.MethodDocumentCancel, &wire.DocumentCancelParams{
			SessionID: sess.id,
			Sequence:  p.Sequence,
		})
	}
}

func (c *conn) onWriteData(ctx context.Context, p wire.WriteDataParams) {
	sess := c.session(ctx, p.SessionID)
	if sess == nil || p.Sequence != sess.writeSeq {
		return
	}
	sess.buf.Write(p.Chunk)
}

func (c *conn) onWriteFinished(ctx context.Context, p wire.WriteFinishedParams) {
	sess := c.session(ctx, p.SessionID)
	if sess == nil || p.Sequence != sess.writeSeq {
		return
	}
	c.srv.recordRendered(sess.jobID, sess.buf.Bytes())
	c.srv.spooler.SetJobState(sess.jobID, print.JobStateCompleted)
	c.notify(ctx, wire.MethodDocumentFinish, &wire.DocumentFinishParams{SessionID: sess.id})
}

func (c *conn) onOperationFailed(ctx context.Context, sessionID string, seq int32, reason string) {
	sess := c.session(ctx, sessionID)
	if sess == nil || (seq != sess.layoutSeq && seq != sess.writeSeq) {
		return
	}
	c.log.InfoContext(ctx, "spoolertest.ws.operation_failed",
		slog.String("session_id", sessionID),
		slog.String("reason", reason))
	c.srv.spooler.SetJobState(sess.jobID, print.JobStateFailed)
	c.notify(ctx, wire.MethodDocumentFinish, &wire.DocumentFinishParams{SessionID: sess.id})
}

func (c *conn) onOperationCancelled(ctx context.Context, sessionID string, seq int32) {
	sess := c.session(ctx, sessionID)
	if sess == nil || (seq != sess.layoutSeq && seq != sess.writeSeq) {
		return
	}
	c.srv.spooler.SetJobState(sess.jobID, print.JobStateCancelled)
	c.notify(ctx, wire.MethodDocumentFinish, &wire.DocumentFinishParams{SessionID: sess.id})
}

func (c *conn) onSessionDestroyed(ctx context.Context, p wire.SessionDestroyedParams) {
	sess := c.sessions[p.SessionID]
	if sess == nil {
		return
	}
	delete(c.sessions, p.SessionID)
	c.srv.cancelIfRunning(sess.jobID)
	c.log.InfoContext(ctx, "spoolertest.ws.session_destroyed",
		slog.String("session_id", p.SessionID),
		slog.String("job_id", string(sess.jobID)))
}
