package delegate

import (
	"log/slog"
	"sync"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

// layoutResult is the one-shot completion for a single layout request. The
// first terminal invocation takes the reply sender; everything after that is
// a no-op. Teardown releases the sender without consuming, so post-teardown
// invocations stay silent while genuine double invocations are logged.
type layoutResult struct {
	d      *Delegate
	seq    int32
	cancel func(error)

	mu       sync.Mutex
	reply    spooler.LayoutResultSender
	consumed bool
}

var _ document.LayoutResult = (*layoutResult)(nil)

// take claims the reply sender. It returns nil when the result was already
// finalized (logged as a duplicate) or torn down (silent).
func (r *layoutResult) take(call string) spooler.LayoutResultSender {
	r.mu.Lock()
	reply := r.reply
	wasConsumed := r.consumed
	if reply != nil {
		r.reply = nil
		r.consumed = true
	}
	r.mu.Unlock()

	if reply == nil && wasConsumed {
		r.d.log.Warn("delegate.layout_result.duplicate",
			slog.String("call", call), slog.Int("seq", int(r.seq)))
	}
	return reply
}

// finalize clears the delegate's pending slot and cancels the request
// context. Runs on every terminal invocation, including panicking ones.
func (r *layoutResult) finalize() {
	r.d.clearPending(r)
	r.cancel(nil)
}

func (r *layoutResult) Finished(info *print.DocumentInfo, changed bool) {
	reply := r.take("finished")
	if reply == nil {
		return
	}
	defer r.finalize()
	if info == nil {
		panic("printspool: layout finished with nil document info")
	}
	if err := reply.LayoutFinished(info, changed, r.seq); err != nil {
		r.d.log.Error("delegate.layout_result.send_failed",
			slog.String("call", "finished"), slog.Int("seq", int(r.seq)),
			slog.String("err", err.Error()))
	}
}

func (r *layoutResult) Failed(reason string) {
	reply := r.take("failed")
	if reply == nil {
		return
	}
	defer r.finalize()
	if err := reply.LayoutFailed(reason, r.seq); err != nil {
		r.d.log.Error("delegate.layout_result.send_failed",
			slog.String("call", "failed"), slog.Int("seq", int(r.seq)),
			slog.String("err", err.Error()))
	}
}

func (r *layoutResult) Cancelled() {
	reply := r.take("cancelled")
	if reply == nil {
		return
	}
	defer r.finalize()
	if err := reply.LayoutCancelled(r.seq); err != nil {
		r.d.log.Error("delegate.layout_result.send_failed",
			slog.String("call", "cancelled"), slog.Int("seq", int(r.seq)),
			slog.String("err", err.Error()))
	}
}

// release drops the reply sender without consuming it. Teardown only; the
// slot and request context are handled by the destroy path.
func (r *layoutResult) release() {
	r.mu.Lock()
	r.reply = nil
	r.mu.Unlock()
}
