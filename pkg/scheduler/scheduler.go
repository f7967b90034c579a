package scheduler

import (
	"context"
	"sync"
	"time"

	"Guardian/pkg/logger"

	"go.uber.org/zap"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Scheduler runs ticker-driven jobs until Stop. Each job runs on its own goroutine;
// a job never overlaps with itself.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Stop cancels the job context and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Every runs job every d. With immediate set the first run happens right away.
func (s *Scheduler) Every(name string, d time.Duration, immediate bool, job Job) {
	s.wg.Add(1)
	go s.loopEvery(name, d, immediate, job)
}

func (s *Scheduler) loopEvery(name string, d time.Duration, immediate bool, job Job) {
	defer s.wg.Done()
	if immediate {
		runSafe(s.ctx, name, job)
	}
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			runSafe(s.ctx, name, job)
		}
	}
}

func runSafe(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	job.Run(ctx)
}
