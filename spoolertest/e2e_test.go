package spoolertest_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spoolworks/printspool-go/document"
	"github.com/spoolworks/printspool-go/lifecycle"
	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/printclient"
	"github.com/spoolworks/printspool-go/spooler"
	"github.com/spoolworks/printspool-go/spoolertest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

// The full client stack against the in-process spooler: a Manager-created
// session driven through layout, write and finish by a Driver playing the
// spooler's part.
func TestEndToEnd_PrintDrivenToCompletion(t *testing.T) {
	sp := spoolertest.New(spoolertest.WithLogger(testLogger()))
	owner := lifecycle.NewOwner()
	defer owner.Destroy()

	mgr := printclient.New(sp,
		printclient.WithOwner(owner),
		printclient.WithLogger(testLogger()),
		printclient.WithCaller(spooler.Caller{App: "com.example.reports"}))
	defer mgr.Close()

	adapter := document.AdapterFuncs{
		Layout: func(ctx context.Context, oldAttrs, newAttrs *print.Attributes, result document.LayoutResult, meta document.LayoutMetadata) {
			result.Finished(&print.DocumentInfo{
				Name:        "q3.pdf",
				ContentType: "application/pdf",
				PageCount:   2,
			}, oldAttrs == nil)
		},
		Write: func(ctx context.Context, pages []print.PageRange, out io.Writer, result document.WriteResult) {
			if _, err := out.Write([]byte("%PDF-1.7 q3 report")); err != nil {
				result.Failed(err.Error())
				return
			}
			result.Finished(pages)
		},
	}

	attrs := &print.Attributes{MediaSize: &print.MediaSizeISOA4, ColorMode: print.ColorModeColor}
	job, err := mgr.Print(testContext(t), "q3 report", adapter, attrs)
	if err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	drv := spoolertest.NewDriver(sp.LastSession())
	drv.Start()

	seq := drv.Layout(nil, attrs, false)
	ack := recv(t, drv.Acks, "layout ack")
	if ack.Seq != seq {
		t.Fatalf("layout ack seq = %d, want %d", ack.Seq, seq)
	}
	lr := recv(t, drv.Layouts, "layout result")
	if !lr.Finished || lr.Info == nil || lr.Info.Name != "q3.pdf" {
		t.Fatalf("layout reply = %+v, want finished q3.pdf", lr)
	}
	if !lr.Changed {
		t.Fatal("first layout pass should report changed")
	}

	sink, wseq := drv.Write([]print.PageRange{print.AllPages()})
	if got := recv(t, drv.Acks, "write ack"); got.Seq != wseq {
		t.Fatalf("write ack seq = %d, want %d", got.Seq, wseq)
	}
	wr := recv(t, drv.Writes, "write result")
	if !wr.Finished || len(wr.Pages) != 1 || !wr.Pages[0].IsAllPages() {
		t.Fatalf("write reply = %+v, want all pages finished", wr)
	}

	select {
	case <-sink.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("sink never released")
	}
	if !bytes.Equal(sink.Bytes(), []byte("%PDF-1.7 q3 report")) {
		t.Fatalf("rendered bytes = %q", sink.Bytes())
	}

	sp.SetJobState(job.ID(), print.JobStateCompleted)
	drv.Finish()

	info, err := job.Info(testContext(t))
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.State != print.JobStateCompleted {
		t.Fatalf("job state = %q, want completed", info.State)
	}

	// Owner teardown after a finished session must not disturb the job.
	owner.Destroy()
	got, err := sp.Job(testContext(t), job.ID())
	if err != nil {
		t.Fatalf("Job() error = %v", err)
	}
	if got.State != print.JobStateCompleted {
		t.Fatalf("job state after teardown = %q, want completed", got.State)
	}
}

// Tearing the lifecycle owner down mid-layout cancels the in-flight request
// and, through the destroy observer, the backing job.
func TestEndToEnd_TeardownCancelsRunningJob(t *testing.T) {
	sp := spoolertest.New(spoolertest.WithLogger(testLogger()))
	owner := lifecycle.NewOwner()

	mgr := printclient.New(sp,
		printclient.WithOwner(owner),
		printclient.WithLogger(testLogger()),
		printclient.WithCaller(spooler.Caller{App: "com.example.reports"}))
	defer mgr.Close()

	layoutEntered := make(chan struct{}, 1)
	adapter := document.AdapterFuncs{
		Layout: func(ctx context.Context, oldAttrs, newAttrs *print.Attributes, result document.LayoutResult, meta document.LayoutMetadata) {
			layoutEntered <- struct{}{}
			<-ctx.Done()
			result.Cancelled()
		},
	}

	job, err := mgr.Print(testContext(t), "never finishes", adapter, nil)
	if err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	drv := spoolertest.NewDriver(sp.LastSession())
	drv.Start()
	drv.Layout(nil, nil, false)
	recv(t, drv.Acks, "layout ack")
	recv(t, layoutEntered, "layout hook")

	owner.Destroy()

	ctx, cancel := context.WithTimeout(testContext(t), 2*time.Second)
	defer cancel()
	if err := sp.WaitForJobState(ctx, job.ID(), print.JobStateCancelled); err != nil {
		t.Fatalf("job never cancelled: %v", err)
	}

	// The pending reply was dropped at teardown, so the adapter's Cancelled
	// call goes nowhere.
	select {
	case lr := <-drv.Layouts:
		t.Fatalf("unexpected layout reply after teardown: %+v", lr)
	case <-time.After(100 * time.Millisecond):
	}
}
