package scheduler

import (
	"context"
	"time"

	"Guardian/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron wraps robfig/cron with panic recovery, overlap skipping and a job context
// that is cancelled on Stop.
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels running jobs' context and waits for them.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

// Add schedules job under a standard cron spec or a descriptor such as "@every 10m".
func (cr *Cron) Add(name, expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() {
		start := time.Now()
		job.Run(cr.ctx)
		logger.Debug("cron job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }

// cronLogger routes robfig/cron's logr-style output into zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, zap.Any("kv", keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, zap.Error(err), zap.Any("kv", keysAndValues))
}
