// Package supervisor runs periodic background work that can be stopped
// without races. It is built on robfig/cron with a fixed-interval schedule.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Work is one invocation of a periodic task. ctx is cancelled when the
// task is stopped.
type Work func(ctx context.Context)

// Supervisor starts periodic tasks.
type Supervisor struct {
	logger cron.Logger
}

// New creates a Supervisor that logs scheduler activity to logger.
func New(logger cron.Logger) *Supervisor {
	if logger == nil {
		logger = cron.DiscardLogger
	}
	return &Supervisor{logger: logger}
}

// Task is a handle to a running periodic task. It is either running or stopped.
type Task struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// every is a cron.Schedule firing at a fixed interval. Unlike cron.Every it
// keeps sub-second precision.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Start runs work once immediately and then every interval until the
// returned Task is stopped. A run is skipped while the previous one is
// still outstanding.
func (s *Supervisor) Start(interval time.Duration, work Work) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		cron:   cron.New(cron.WithLogger(s.logger)),
		ctx:    ctx,
		cancel: cancel,
	}

	// Recover sits inside SkipIfStillRunning: the skip wrapper only frees
	// its slot when the wrapped job returns normally.
	job := cron.NewChain(
		cron.SkipIfStillRunning(s.logger),
		cron.Recover(s.logger),
	).Then(cron.FuncJob(func() { t.invoke(work) }))

	t.cron.Schedule(every(interval), job)
	t.cron.Start()

	// Initial check does not wait a full interval.
	go job.Run()
	return t
}

// invoke runs work unless the task has been stopped. The check and the
// registration happen under the same lock Stop takes.
func (t *Task) invoke(work Work) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	work(t.ctx)
}

// Stop halts the task. After Stop returns no new invocation begins; one
// already executing sees its context cancelled and may run to completion.
// Stop is idempotent and does not wait for the running invocation.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.cancel()
	t.cron.Stop()
}

// Wait blocks until any invocation still executing has returned.
func (t *Task) Wait() {
	t.wg.Wait()
}
