package printclient

import (
	"context"
	"errors"
	"sync"

	"github.com/spoolworks/printspool-go/print"
	"github.com/spoolworks/printspool-go/spooler"
)

// jobListenerForwarder is the per-registration object handed to the
// spooler. It holds a non-owning reference to the application listener:
// closing the registration clears it, so deliveries that race the close
// probe the slot and drop silently instead of reviving the listener.
// Deliveries are serialized on the manager's dispatch loop, never on the
// transport's read goroutine.
type jobListenerForwarder struct {
	m *Manager

	mu       sync.Mutex
	listener spooler.JobStateListener
}

var _ spooler.JobStateListener = (*jobListenerForwarder)(nil)

func (f *jobListenerForwarder) OnJobStateChanged(id print.JobID) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l == nil {
		return
	}
	f.m.loop.Enqueue(func() {
		// Probe again at delivery time; the registration may have closed
		// while this dispatch sat in the queue.
		f.mu.Lock()
		l := f.listener
		f.mu.Unlock()
		if l == nil {
			return
		}
		l.OnJobStateChanged(id)
	})
}

func (f *jobListenerForwarder) drop() {
	f.mu.Lock()
	f.listener = nil
	f.mu.Unlock()
}

// JobListenerRegistration is the stable handle for one job-state
// subscription. Close is idempotent.
type JobListenerRegistration struct {
	m *Manager

	mu  sync.Mutex
	fwd *jobListenerForwarder
}

// Close stops deliveries immediately and releases the spooler-side
// subscription.
func (r *JobListenerRegistration) Close(ctx context.Context) error {
	r.mu.Lock()
	fwd := r.fwd
	r.fwd = nil
	r.mu.Unlock()
	if fwd == nil {
		return nil
	}
	fwd.drop()
	if r.m.service == nil {
		return nil
	}
	return r.m.service.UnregisterJobListener(ctx, fwd)
}

// RegisterJobListener subscribes l to job state transitions and returns the
// registration handle controlling its lifetime. The listener is invoked on
// the manager's dispatch loop, one event at a time.
func (m *Manager) RegisterJobListener(ctx context.Context, l spooler.JobStateListener) (*JobListenerRegistration, error) {
	if l == nil {
		return nil, errors.New("listener must not be nil")
	}
	if m.service == nil {
		m.log.WarnContext(ctx, "printclient.register_listener.unavailable")
		return nil, spooler.ErrUnavailable
	}

	fwd := &jobListenerForwarder{m: m, listener: l}
	if err := m.service.RegisterJobListener(ctx, fwd); err != nil {
		return nil, err
	}
	return &JobListenerRegistration{m: m, fwd: fwd}, nil
}
