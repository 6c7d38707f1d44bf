package spoolertest

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

// Driver plays the spooler's role against one document session: it allocates
// sequence numbers, issues the drive calls, and records every reply on
// buffered channels. Tests receive from the channels with their own
// timeouts.
type Driver struct {
	doc spooler.DocumentSession
	seq atomic.Int32

	// Acks receives layoutStarted/writeStarted acknowledgements in send
	// order, each carrying the remote cancel handle.
	Acks chan Ack
	// Layouts receives layout results.
	Layouts chan LayoutReply
	// Writes receives write results.
	Writes chan WriteReply
}

// Ack is a start acknowledgement for one operation.
type Ack struct {
	Seq    int32
	Cancel func()
}

// LayoutReply is one layout result. Exactly one of Finished, Failed or
// Cancelled is set.
type LayoutReply struct {
	Seq       int32
	Finished  bool
	Info      *print.DocumentInfo
	Changed   bool
	Failed    bool
	Reason    string
	Cancelled bool
}

// WriteReply is one write result.
type WriteReply struct {
	Seq       int32
	Finished  bool
	Pages     []print.PageRange
	Failed    bool
	Reason    string
	Cancelled bool
}

// NewDriver wraps a document session.
func NewDriver(doc spooler.DocumentSession) *Driver {
	return &Driver{
		doc:     doc,
		Acks:    make(chan Ack, 16),
		Layouts: make(chan LayoutReply, 16),
		Writes:  make(chan WriteReply, 16),
	}
}

// Start forwards the start-of-protocol signal.
func (d *Driver) Start() { d.doc.Start() }

// Layout requests a layout pass and returns the sequence it was issued
// under.
func (d *Driver) Layout(oldAttrs, newAttrs *print.Attributes, preview bool) int32 {
	seq := d.seq.Add(1)
	d.doc.Layout(oldAttrs, newAttrs, &driverLayoutSender{d: d}, document.LayoutMetadata{Preview: preview}, seq)
	return seq
}

// Write requests rendering of the given pages. The returned recorder
// captures everything the session writes and reports when the sink is
// released.
func (d *Driver) Write(pages []print.PageRange) (*SinkRecorder, int32) {
	seq := d.seq.Add(1)
	sink := NewSinkRecorder()
	d.doc.Write(pages, sink, &driverWriteSender{d: d}, seq)
	return sink, seq
}

// Finish ends the document protocol.
func (d *Driver) Finish() { d.doc.Finish() }

type driverLayoutSender struct {
	d *Driver
}

var _ spooler.LayoutResultSender = (*driverLayoutSender)(nil)

func (s *driverLayoutSender) LayoutStarted(cancel func(), seq int32) error {
	s.d.Acks <- Ack{Seq: seq, Cancel: cancel}
	return nil
}

func (s *driverLayoutSender) LayoutFinished(info *print.DocumentInfo, changed bool, seq int32) error {
	s.d.Layouts <- LayoutReply{Seq: seq, Finished: true, Info: info, Changed: changed}
	return nil
}

func (s *driverLayoutSender) LayoutFailed(reason string, seq int32) error {
	s.d.Layouts <- LayoutReply{Seq: seq, Failed: true, Reason: reason}
	return nil
}

func (s *driverLayoutSender) LayoutCancelled(seq int32) error {
	s.d.Layouts <- LayoutReply{Seq: seq, Cancelled: true}
	return nil
}

type driverWriteSender struct {
	d *Driver
}

var _ spooler.WriteResultSender = (*driverWriteSender)(nil)

func (s *driverWriteSender) WriteStarted(cancel func(), seq int32) error {
	s.d.Acks <- Ack{Seq: seq, Cancel: cancel}
	return nil
}

func (s *driverWriteSender) WriteFinished(pages []print.PageRange, seq int32) error {
	s.d.Writes <- WriteReply{Seq: seq, Finished: true, Pages: pages}
	return nil
}

func (s *driverWriteSender) WriteFailed(reason string, seq int32) error {
	s.d.Writes <- WriteReply{Seq: seq, Failed: true, Reason: reason}
	return nil
}

func (s *driverWriteSender) WriteCancelled(seq int32) error {
	s.d.Writes <- WriteReply{Seq: seq, Cancelled: true}
	return nil
}

// SinkRecorder is an io.WriteCloser capturing rendered document bytes.
type SinkRecorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	done   chan struct{}
}

var _ io.WriteCloser = (*SinkRecorder)(nil)

// NewSinkRecorder returns an open recorder.
func NewSinkRecorder() *SinkRecorder {
	return &SinkRecorder{done: make(chan struct{})}
}

func (s *SinkRecorder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *SinkRecorder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Bytes returns a copy of everything written so far.
func (s *SinkRecorder) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out
}

// Closed returns a channel that closes when the session releases the sink.
func (s *SinkRecorder) Closed() <-chan struct{} { return s.done }
