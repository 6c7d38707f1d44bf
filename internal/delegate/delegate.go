// Package delegate implements the document session delegate: the
// remote-callable object a spooler drives through the start → layout →
// write → finish protocol. Entry points arrive on arbitrary transport
// goroutines; the delegate guards its state under one mutex, acknowledges
// layout/write before any queueing, and hands application work to a
// serialized run loop. Teardown, whether spooler-initiated via Finish or
// host-initiated via the lifecycle owner, is terminal and idempotent.
package delegate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/internal/logctx"
	"github.com/spoolworks/printspool-go/internal/runloop"
	"github.com/spoolworks/printspool-go/lifecycle"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

type state int

const (
	stateActive state = iota
	stateDestroyed
)

// destroyable is the teardown-side view of a pending result callback:
// release resources without sending a reply.
type destroyable interface {
	release()
}

// Config carries the dependencies of one document session.
type Config struct {
	SessionID string
	JobName   string
	Adapter   document.Adapter
	Owner     *lifecycle.Owner
	Logger    *slog.Logger
}

// Delegate is one document session's remote-callable state machine.
type Delegate struct {
	log           *slog.Logger
	sessionID     string
	sessionCtx    context.Context
	cancelSession context.CancelCauseFunc

	mu          sync.Mutex
	state       state
	adapter     document.Adapter
	loop        *runloop.Loop
	owner       *lifecycle.Owner
	observer    spooler.DestroyObserver
	pending     destroyable
	unsubscribe func()
}

var _ spooler.DocumentSession = (*Delegate)(nil)

// New constructs an Active delegate bound to the owner's lifecycle. If the
// owner is already destroyed the delegate is born destroyed.
func New(cfg Config) (*Delegate, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("delegate: adapter must not be nil")
	}
	if cfg.Owner == nil {
		return nil, errors.New("delegate: lifecycle owner must not be nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	base := logctx.WithSessionData(context.Background(), &logctx.SessionData{
		SessionID: cfg.SessionID,
		JobName:   cfg.JobName,
	})
	ctx, cancel := context.WithCancelCause(base)

	d := &Delegate{
		log:           log,
		sessionID:     cfg.SessionID,
		sessionCtx:    ctx,
		cancelSession: cancel,
		state:         stateActive,
		adapter:       cfg.Adapter,
		loop:          runloop.New(),
		owner:         cfg.Owner,
	}
	// OnDestroy fires synchronously when the owner is already gone, which
	// lands in destroy before New returns.
	d.unsubscribe = cfg.Owner.OnDestroy(func() { d.destroy(true) })
	return d, nil
}

// SessionID returns the transport-assigned session identifier.
func (d *Delegate) SessionID() string {
	return d.sessionID
}

// Destroyed reports whether the session reached its terminal state.
func (d *Delegate) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == stateDestroyed
}

// RegisterObserver stores the spooler's destroy observer. A nil observer
// clears the slot. Registration against a destroyed session notifies the
// observer synchronously and retains nothing.
func (d *Delegate) RegisterObserver(obs spooler.DestroyObserver) {
	d.mu.Lock()
	if d.state == stateActive {
		d.observer = obs
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	if obs != nil {
		obs.OnSessionDestroyed()
	}
}

// Start enqueues the application's start hook. Destroyed sessions ignore
// the call; the remote side cannot distinguish "finished" from "never
// started" and must not be told otherwise.
func (d *Delegate) Start() {
	d.mu.Lock()
	if d.state == stateDestroyed {
		d.mu.Unlock()
		d.log.DebugContext(d.sessionCtx, "delegate.start.ignored_destroyed")
		return
	}
	adapter := d.adapter
	loop := d.loop
	d.mu.Unlock()

	ctx := d.sessionCtx
	if !loop.Enqueue(func() { adapter.OnStart(ctx) }) {
		d.log.DebugContext(ctx, "delegate.start.dropped")
	}
}

// Layout acknowledges the operation with a cancellation handle, then, if
// still Active, binds a one-shot layout result to seq and enqueues the
// application's layout hook.
func (d *Delegate) Layout(oldAttrs, newAttrs *print.Attributes, reply spooler.LayoutResultSender, meta document.LayoutMetadata, seq int32) {
	opCtx := logctx.WithOperationData(d.sessionCtx, &logctx.OperationData{Kind: "layout", Sequence: seq})
	ctx, cancel := context.WithCancelCause(opCtx)

	// The ack goes out before any queueing so the caller can cancel even
	// when the loop is backlogged.
	if err := reply.LayoutStarted(func() { cancel(spooler.ErrCancelRequested) }, seq); err != nil {
		d.log.ErrorContext(opCtx, "delegate.layout.ack_failed", slog.String("err", err.Error()))
		cancel(nil)
		return
	}

	d.mu.Lock()
	if d.state == stateDestroyed {
		d.mu.Unlock()
		d.log.DebugContext(opCtx, "delegate.layout.ignored_destroyed")
		cancel(spooler.ErrSessionDestroyed)
		return
	}
	if d.pending != nil {
		d.mu.Unlock()
		d.log.WarnContext(opCtx, "delegate.layout.pending_collision")
		cancel(nil)
		return
	}
	r := &layoutResult{d: d, seq: seq, reply: reply, cancel: cancel}
	d.pending = r
	adapter := d.adapter
	loop := d.loop
	d.mu.Unlock()

	if !loop.Enqueue(func() { adapter.OnLayout(ctx, oldAttrs, newAttrs, r, meta) }) {
		// Teardown won the race after the pending slot was set; the purge
		// path already released r.
		d.log.DebugContext(opCtx, "delegate.layout.dropped")
	}
}

// Write mirrors Layout for page rendering. Ownership of sink transfers to
// the bound write result, which closes it on every outcome.
func (d *Delegate) Write(pages []print.PageRange, sink io.WriteCloser, reply spooler.WriteResultSender, seq int32) {
	opCtx := logctx.WithOperationData(d.sessionCtx, &logctx.OperationData{Kind: "write", Sequence: seq})
	ctx, cancel := context.WithCancelCause(opCtx)

	if err := reply.WriteStarted(func() { cancel(spooler.ErrCancelRequested) }, seq); err != nil {
		d.log.ErrorContext(opCtx, "delegate.write.ack_failed", slog.String("err", err.Error()))
		cancel(nil)
		closeQuietly(d.log, opCtx, sink)
		return
	}

	d.mu.Lock()
	if d.state == stateDestroyed {
		d.mu.Unlock()
		d.log.DebugContext(opCtx, "delegate.write.ignored_destroyed")
		cancel(spooler.ErrSessionDestroyed)
		closeQuietly(d.log, opCtx, sink)
		return
	}
	if d.pending != nil {
		d.mu.Unlock()
		d.log.WarnContext(opCtx, "delegate.write.pending_collision")
		cancel(nil)
		closeQuietly(d.log, opCtx, sink)
		return
	}
	r := &writeResult{d: d, seq: seq, reply: reply, sink: sink, cancel: cancel}
	d.pending = r
	adapter := d.adapter
	loop := d.loop
	d.mu.Unlock()

	if !loop.Enqueue(func() { adapter.OnWrite(ctx, pages, r, r) }) {
		d.log.DebugContext(opCtx, "delegate.write.dropped")
	}
}

// Finish enqueues the application's finish hook; completing it destroys the
// session. This is the only self-initiated destruction path.
func (d *Delegate) Finish() {
	d.mu.Lock()
	if d.state == stateDestroyed {
		d.mu.Unlock()
		d.log.DebugContext(d.sessionCtx, "delegate.finish.ignored_destroyed")
		return
	}
	adapter := d.adapter
	loop := d.loop
	d.mu.Unlock()

	ctx := d.sessionCtx
	if !loop.Enqueue(func() {
		adapter.OnFinish(ctx)
		d.destroy(false)
	}) {
		d.log.DebugContext(ctx, "delegate.finish.dropped")
	}
}

// destroy transitions to the terminal state: under the lock it captures the
// observer and the pending callback and clears every stored reference; after
// releasing the lock it cancels the session context, purges the loop,
// releases the pending callback without a reply, and on the owner-teardown
// path notifies the captured observer exactly once.
// Whichever of finish/teardown reaches the lock first performs the
// transition; the loser observes Destroyed and no-ops.
func (d *Delegate) destroy(notifyObserver bool) {
	d.mu.Lock()
	if d.state == stateDestroyed {
		d.mu.Unlock()
		return
	}
	d.state = stateDestroyed
	obs := d.observer
	pending := d.pending
	loop := d.loop
	unsubscribe := d.unsubscribe
	d.adapter = nil
	d.observer = nil
	d.pending = nil
	d.loop = nil
	d.owner = nil
	d.unsubscribe = nil
	d.mu.Unlock()

	d.cancelSession(spooler.ErrSessionDestroyed)
	loop.Close()
	if unsubscribe != nil {
		unsubscribe()
	}
	if pending != nil {
		pending.release()
	}
	if notifyObserver && obs != nil {
		obs.OnSessionDestroyed()
	}
	d.log.InfoContext(d.sessionCtx, "delegate.destroyed", slog.Bool("by_finish", !notifyObserver))
}

// clearPending drops the slot if it still points at c.
func (d *Delegate) clearPending(c destroyable) {
	d.mu.Lock()
	if d.pending == c {
		d.pending = nil
	}
	d.mu.Unlock()
}

func closeQuietly(log *slog.Logger, ctx context.Context, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.DebugContext(ctx, "delegate.sink_close_failed", slog.String("err", err.Error()))
	}
}
