package spooler

import (
	"io"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/print"
)

// DocumentSession is the delegate's remote-callable surface: the object a
// spooler drives to produce document content. Calls may arrive from any
// goroutine, in any state; implementations guard state internally and never
// panic on calls after destruction.
type DocumentSession interface {
	// RegisterObserver stores the spooler's destroy observer. If the session
	// is already destroyed the observer is notified synchronously and not
	// retained.
	RegisterObserver(obs DestroyObserver)

	// Start announces the beginning of the document protocol.
	Start()

	// Layout requests a layout pass. The reply's LayoutStarted
	// acknowledgement is sent before any local queueing; a failed
	// acknowledgement aborts the operation.
	Layout(oldAttrs, newAttrs *print.Attributes, reply LayoutResultSender, meta document.LayoutMetadata, seq int32)

	// Write requests rendering of a page subset into sink. Ownership of sink
	// transfers to the session; it is closed on every outcome.
	Write(pages []print.PageRange, sink io.WriteCloser, reply WriteResultSender, seq int32)

	// Finish ends the protocol; the session destroys itself after the
	// application's finish hook runs.
	Finish()
}

// DestroyObserver is notified exactly once when the host tears a document
// session down out from under the spooler. A Finish-initiated destruction
// does not notify: the spooler drove the protocol to its end itself.
type DestroyObserver interface {
	OnSessionDestroyed()
}

// LayoutResultSender is the reply channel for one layout request. The
// sequence passed at the delegate surface is echoed verbatim on every call.
type LayoutResultSender interface {
	// LayoutStarted acknowledges the operation and hands over the
	// cancellation bridge's remote handle.
	LayoutStarted(cancel func(), seq int32) error
	LayoutFinished(info *print.DocumentInfo, changed bool, seq int32) error
	LayoutFailed(reason string, seq int32) error
	LayoutCancelled(seq int32) error
}

// WriteResultSender is the reply channel for one write request.
type WriteResultSender interface {
	WriteStarted(cancel func(), seq int32) error
	WriteFinished(pages []print.PageRange, seq int32) error
	WriteFailed(reason string, seq int32) error
	WriteCancelled(seq int32) error
}
