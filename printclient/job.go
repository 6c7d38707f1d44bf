package printclient

import (
	"context"
	"log/slog"
	"sync"

	"github.com/spoolworks/printspool-go/print"
)

// Job is the local handle on one created print job. It caches the last
// descriptor the spooler reported; once the job reaches a terminal state
// the cache is authoritative and no further fetches happen.
type Job struct {
	m  *Manager
	id print.JobID

	mu     sync.Mutex
	cached print.JobInfo
}

func newJob(m *Manager, info *print.JobInfo) *Job {
	return &Job{m: m, id: info.ID, cached: *info}
}

// ID returns the job identifier.
func (j *Job) ID() print.JobID {
	return j.id
}

// Info returns the job descriptor, refreshing it from the spooler unless
// the cached state is terminal.
func (j *Job) Info(ctx context.Context) (*print.JobInfo, error) {
	j.mu.Lock()
	if j.cached.State.IsTerminal() {
		info := j.cached
		j.mu.Unlock()
		return &info, nil
	}
	j.mu.Unlock()

	info, err := j.m.Job(ctx, j.id)
	if err != nil {
		return nil, err
	}

	j.mu.Lock()
	if info != nil {
		j.cached = *info
	}
	out := j.cached
	j.mu.Unlock()
	return &out, nil
}

// Cancel asks the spooler to cancel the job. Jobs already in a terminal
// state are left alone.
func (j *Job) Cancel(ctx context.Context) error {
	j.mu.Lock()
	terminal := j.cached.State.IsTerminal()
	j.mu.Unlock()
	if terminal {
		j.m.log.DebugContext(ctx, "printclient.job.cancel_skipped_terminal",
			slog.String("job_id", string(j.id)))
		return nil
	}
	return j.m.CancelJob(ctx, j.id)
}

// Restart asks the spooler to restart the job. Only failed jobs can be
// restarted; the check refreshes the descriptor first, since failure is
// typically learned about after the cache went stale.
func (j *Job) Restart(ctx context.Context) error {
	info, err := j.Info(ctx)
	if err != nil {
		return err
	}
	if info.State != print.JobStateFailed {
		j.m.log.DebugContext(ctx, "printclient.job.restart_skipped_not_failed",
			slog.String("job_id", string(j.id)))
		return nil
	}
	return j.m.RestartJob(ctx, j.id)
}
