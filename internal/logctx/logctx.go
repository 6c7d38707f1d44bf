// Package logctx carries print-session log attributes in a context.Context
// and a slog.Handler wrapper that appends them to every record, so the
// delegate, transports and the reference spooler tag their events with the
// session/job/operation they belong to without threading loggers around.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("job_id", sd.JobID),
			slog.String("job_name", sd.JobName),
		))
	}

	if od, ok := ctx.Value(operationDataKey{}).(*OperationData); ok {
		r.AddAttrs(slog.Group("op",
			slog.String("kind", od.Kind),
			slog.Int("seq", int(od.Sequence)),
		))
	}

	if cd, ok := ctx.Value(connDataKey{}).(*ConnData); ok {
		r.AddAttrs(slog.Group("conn",
			slog.String("remote_addr", cd.RemoteAddr),
			slog.String("caller_app", cd.CallerApp),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID string
	JobID     string
	JobName   string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type operationDataKey struct{}

// OperationData tags one layout/write round trip.
type OperationData struct {
	Kind     string // "layout" or "write"
	Sequence int32
}

func WithOperationData(ctx context.Context, data *OperationData) context.Context {
	return context.WithValue(ctx, operationDataKey{}, data)
}

type connDataKey struct{}

type ConnData struct {
	RemoteAddr string
	CallerApp  string
}

func WithConnData(ctx context.Context, data *ConnData) context.Context {
	return context.WithValue(ctx, connDataKey{}, data)
}
