package document

import (
	"context"
	"io"

	"github.com/spoolworks/printspool-go/print"
)

// LayoutMetadata carries layout hints from the spooler.
type LayoutMetadata struct {
	// Preview is set when the layout pass serves an on-screen preview
	// rather than final output.
	Preview bool
}

// LayoutResult is the one-shot outcome of a layout request.
type LayoutResult interface {
	// Finished reports a successful layout. info must be non-nil; changed
	// reports whether the layout differs from the previous pass.
	Finished(info *print.DocumentInfo, changed bool)
	// Failed reports a layout error with a human-readable reason.
	Failed(reason string)
	// Cancelled completes the request after honoring cancellation.
	Cancelled()
}

// WriteResult is the one-shot outcome of a write request.
type WriteResult interface {
	// Finished reports the page ranges actually rendered; the set must not
	// be empty.
	Finished(pages []print.PageRange)
	Failed(reason string)
	Cancelled()
}

// Adapter is the application's document producer. All methods run on the
// session's serialized loop, never concurrently. OnLayout and OnWrite may
// complete their result synchronously or hand it to other goroutines and
// return; the result object stays valid until a terminal call lands.
type Adapter interface {
	// OnStart runs once before the first layout.
	OnStart(ctx context.Context)

	// OnLayout recomputes the document shape for newAttrs. oldAttrs carries
	// the previously applied attributes (nil on the first pass).
	OnLayout(ctx context.Context, oldAttrs, newAttrs *print.Attributes, result LayoutResult, meta LayoutMetadata)

	// OnWrite renders the requested pages into out. The bridge owns closing
	// out; the adapter only writes.
	OnWrite(ctx context.Context, pages []print.PageRange, out io.Writer, result WriteResult)

	// OnFinish runs once after the protocol ends, before the session
	// destroys itself.
	OnFinish(ctx context.Context)
}

// AdapterFuncs adapts plain functions to the Adapter interface. Nil Start
// and Finish hooks are skipped; a nil Layout or Write hook fails the
// request, keeping the one-shot contract intact.
type AdapterFuncs struct {
	Start  func(ctx context.Context)
	Layout func(ctx context.Context, oldAttrs, newAttrs *print.Attributes, result LayoutResult, meta LayoutMetadata)
	Write  func(ctx context.Context, pages []print.PageRange, out io.Writer, result WriteResult)
	Finish func(ctx context.Context)
}

func (f AdapterFuncs) OnStart(ctx context.Context) {
	if f.Start != nil {
		f.Start(ctx)
	}
}

func (f AdapterFuncs) OnLayout(ctx context.Context, oldAttrs, newAttrs *print.Attributes, result LayoutResult, meta LayoutMetadata) {
	if f.Layout == nil {
		result.Failed("layout not implemented")
		return
	}
	f.Layout(ctx, oldAttrs, newAttrs, result, meta)
}

func (f AdapterFuncs) OnWrite(ctx context.Context, pages []print.PageRange, out io.Writer, result WriteResult) {
	if f.Write == nil {
		result.Failed("write not implemented")
		return
	}
	f.Write(ctx, pages, out, result)
}

func (f AdapterFuncs) OnFinish(ctx context.Context) {
	if f.Finish != nil {
		f.Finish(ctx)
	}
}

var _ Adapter = AdapterFuncs{}
