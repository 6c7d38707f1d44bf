package delegate

import (
	"io"
	"log/slog"
	"sync"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

// writeResult is the one-shot completion for a single write request. It owns
// the page data sink and closes it exactly once, on whichever of terminal
// invocation or teardown comes first. It doubles as the io.Writer handed to
// the application so writes after teardown fail instead of racing the close.
type writeResult struct {
	d      *Delegate
	seq    int32
	cancel func(error)

	mu       sync.Mutex
	reply    spooler.WriteResultSender
	sink     io.WriteCloser
	consumed bool
}

var (
	_ document.WriteResult = (*writeResult)(nil)
	_ io.Writer            = (*writeResult)(nil)
)

func (r *writeResult) Write(p []byte) (int, error) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink == nil {
		return 0, io.ErrClosedPipe
	}
	return sink.Write(p)
}

func (r *writeResult) take(call string) spooler.WriteResultSender {
	r.mu.Lock()
	reply := r.reply
	wasConsumed := r.consumed
	if reply != nil {
		r.reply = nil
		r.consumed = true
	}
	r.mu.Unlock()

	if reply == nil && wasConsumed {
		r.d.log.Warn("delegate.write_result.duplicate",
			slog.String("call", call), slog.Int("seq", int(r.seq)))
	}
	return reply
}

func (r *writeResult) closeSink() {
	r.mu.Lock()
	sink := r.sink
	r.sink = nil
	r.mu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.Close(); err != nil {
		r.d.log.Debug("delegate.write_result.sink_close_failed",
			slog.Int("seq", int(r.seq)), slog.String("err", err.Error()))
	}
}

// finalize closes the sink after the reply went out, clears the delegate's
// pending slot, and cancels the request context.
func (r *writeResult) finalize() {
	r.closeSink()
	r.d.clearPending(r)
	r.cancel(nil)
}

func (r *writeResult) Finished(pages []print.PageRange) {
	reply := r.take("finished")
	if reply == nil {
		return
	}
	defer r.finalize()
	if len(pages) == 0 {
		panic("printspool: write finished with no pages")
	}
	if err := reply.WriteFinished(pages, r.seq); err != nil {
		r.d.log.Error("delegate.write_result.send_failed",
			slog.String("call", "finished"), slog.Int("seq", int(r.seq)),
			slog.String("err", err.Error()))
	}
}

func (r *writeResult) Failed(reason string) {
	reply := r.take("failed")
	if reply == nil {
		return
	}
	defer r.finalize()
	if err := reply.WriteFailed(reason, r.seq); err != nil {
		r.d.log.Error("delegate.write_result.send_failed",
			slog.String("call", "failed"), slog.Int("seq", int(r.seq)),
			slog.String("err", err.Error()))
	}
}

func (r *writeResult) Cancelled() {
	reply := r.take("cancelled")
	if reply == nil {
		return
	}
	defer r.finalize()
	if err := reply.WriteCancelled(r.seq); err != nil {
		r.d.log.Error("delegate.write_result.send_failed",
			slog.String("call", "cancelled"), slog.Int("seq", int(r.seq)),
			slog.String("err", err.Error()))
	}
}

// release drops the reply sender without consuming it and closes the sink.
// Teardown only.
func (r *writeResult) release() {
	r.mu.Lock()
	r.reply = nil
	r.mu.Unlock()
	r.closeSink()
}
