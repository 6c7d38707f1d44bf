// Package runloop provides the serialized task executor behind a document
// session: one worker goroutine draining a FIFO queue, so everything
// enqueued runs in submission order and nothing runs concurrently. Closing
// the loop discards queued-but-unrun tasks while letting an in-flight task
// finish, which is exactly the purge semantic session teardown needs.
package runloop

import "sync"

// Loop is a single-worker FIFO executor. Construct with New; the zero value
// is not usable.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New starts the worker goroutine and returns the loop.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Enqueue appends task to the queue. It never blocks on task execution. The
// return value reports whether the task was accepted; false means the loop
// is closed and the task was dropped.
func (l *Loop) Enqueue(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return true
}

// Close discards every queued task and stops the worker once any in-flight
// task returns. It is idempotent and does not wait for the worker to exit;
// use Done for that.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	l.cond.Signal()
}

// Done is closed when the worker goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
