package spoolws

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/internal/wire"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

// writeChunkSize caps one document/data notification's payload.
const writeChunkSize = 32 * 1024

func (c *Client) sessionFor(ctx context.Context, id string) spooler.DocumentSession {
	c.mu.Lock()
	sess := c.sessions[id]
	c.mu.Unlock()
	if sess == nil {
		c.log.WarnContext(ctx, "spoolws.unknown_session", slog.String("session_id", id))
	}
	return sess
}

func (c *Client) handleDocumentNotification(ctx context.Context, req *wire.Request) {
	switch req.Method {
	case wire.MethodDocumentStart:
		var p wire.DocumentStartParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		if sess := c.sessionFor(ctx, p.SessionID); sess != nil {
			sess.Start()
		}
	case wire.MethodDocumentLayout:
		var p wire.DocumentLayoutParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		sess := c.sessionFor(ctx, p.SessionID)
		if sess == nil {
			return
		}
		reply := &layoutSender{c: c, sessionID: p.SessionID}
		sess.Layout(p.OldAttributes, p.NewAttributes, reply, document.LayoutMetadata{Preview: p.Preview}, p.Sequence)
	case wire.MethodDocumentWrite:
		var p wire.DocumentWriteParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		sess := c.sessionFor(ctx, p.SessionID)
		if sess == nil {
			return
		}
		sink := &wireSink{c: c, sessionID: p.SessionID, seq: p.Sequence}
		reply := &writeSender{c: c, sessionID: p.SessionID}
		sess.Write(p.Pages, sink, reply, p.Sequence)
	case wire.MethodDocumentFinish:
		var p wire.DocumentFinishParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		if sess := c.sessionFor(ctx, p.SessionID); sess != nil {
			sess.Finish()
		}
	case wire.MethodDocumentCancel:
		var p wire.DocumentCancelParams
		if err := req.UnmarshalParams(&p); err != nil {
			return
		}
		c.mu.Lock()
		cancel := c.cancels[cancelKey{sessionID: p.SessionID, seq: p.Sequence}]
		c.mu.Unlock()
		if cancel == nil {
			c.log.DebugContext(ctx, "spoolws.cancel_unknown_operation",
				slog.String("session_id", p.SessionID),
				slog.Int("seq", int(p.Sequence)))
			return
		}
		cancel()
	}
}

// layoutSender carries one layout round trip's replies back over the
// connection. LayoutStarted registers the cancellation bridge under the
// operation's sequence; the terminal replies unregister it.
type layoutSender struct {
	c         *Client
	sessionID string
}

var _ spooler.LayoutResultSender = (*layoutSender)(nil)

func (s *layoutSender) LayoutStarted(cancel func(), seq int32) error {
	s.c.registerCancel(s.sessionID, seq, cancel)
	if err := s.c.notify(wire.MethodLayoutStarted, &wire.OperationAckParams{SessionID: s.sessionID, Sequence: seq}); err != nil {
		s.c.unregisterCancel(s.sessionID, seq)
		return err
	}
	return nil
}

func (s *layoutSender) LayoutFinished(info *print.DocumentInfo, changed bool, seq int32) error {
	s.c.unregisterCancel(s.sessionID, seq)
	return s.c.notify(wire.MethodLayoutFinished, &wire.LayoutFinishedParams{
		SessionID: s.sessionID,
		Info:      info,
		Changed:   changed,
		Sequence:  seq,
	})
}

func (s *layoutSender) LayoutFailed(reason string, seq int32) error {
	s.c.unregisterCancel(s.sessionID, seq)
	return s.c.notify(wire.MethodLayoutFailed, &wire.OperationFailedParams{
		SessionID: s.sessionID,
		Reason:    reason,
		Sequence:  seq,
	})
}

func (s *layoutSender) LayoutCancelled(seq int32) error {
	s.c.unregisterCancel(s.sessionID, seq)
	return s.c.notify(wire.MethodLayoutCancelled, &wire.OperationCancelledParams{
		SessionID: s.sessionID,
		Sequence:  seq,
	})
}

type writeSender struct {
	c         *Client
	sessionID string
}

var _ spooler.WriteResultSender = (*writeSender)(nil)

func (s *writeSender) WriteStarted(cancel func(), seq int32) error {
	s.c.registerCancel(s.sessionID, seq, cancel)
	if err := s.c.notify(wire.MethodWriteStarted, &wire.OperationAckParams{SessionID: s.sessionID, Sequence: seq}); err != nil {
		s.c.unregisterCancel(s.sessionID, seq)
		return err
	}
	return nil
}

func (s *writeSender) WriteFinished(pages []print.PageRange, seq int32) error {
	s.c.unregisterCancel(s.sessionID, seq)
	return s.c.notify(wire.MethodWriteFinished, &wire.WriteFinishedParams{
		SessionID: s.sessionID,
		Pages:     pages,
		Sequence:  seq,
	})
}

func (s *writeSender) WriteFailed(reason string, seq int32) error {
	s.c.unregisterCancel(s.sessionID, seq)
	return s.c.notify(wire.MethodWriteFailed, &wire.OperationFailedParams{
		SessionID: s.sessionID,
		Reason:    reason,
		Sequence:  seq,
	})
}

func (s *writeSender) WriteCancelled(seq int32) error {
	s.c.unregisterCancel(s.sessionID, seq)
	return s.c.notify(wire.MethodWriteCancelled, &wire.OperationCancelledParams{
		SessionID: s.sessionID,
		Sequence:  seq,
	})
}

// wireSink streams rendered bytes to the spooler as document/data
// notifications, chunked so one oversized write cannot monopolize the
// connection.
type wireSink struct {
	c         *Client
	sessionID string
	seq       int32

	mu     sync.Mutex
	closed bool
}

var _ io.WriteCloser = (*wireSink)(nil)

func (s *wireSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	total := 0
	for len(p) > 0 {
		n := min(len(p), writeChunkSize)
		err := s.c.notify(wire.MethodWriteData, &wire.WriteDataParams{
			SessionID: s.sessionID,
			Chunk:     p[:n],
			Sequence:  s.seq,
		})
		if err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

func (s *wireSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
