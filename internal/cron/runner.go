package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"leadboard/api/internal/logger"
)

// Runner schedules background jobs on six-field (seconds first) specs. A run
// that is still going when its next tick fires is skipped.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(log *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger.OrNop(log),
		baseCtx: baseCtx,
	}
}

// Add registers job under name. Each run gets the runner's base context and
// its outcome is logged.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		started := time.Now()
		err := job(r.baseCtx)
		fields := []zap.Field{zap.String("job", name), zap.Duration("duration", time.Since(started))}
		if err != nil {
			r.logger.Warn("cron job failed", append(fields, zap.Error(err))...)
			return
		}
		r.logger.Debug("cron job finished", fields...)
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
