package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner — то, что запускает расписание.
type Runner interface {
	RunScheduled(ctx context.Context) (*RunResult, error)
}

// Scheduler запускает плановые копии по cron-выражению.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.SugaredLogger
}

// NewScheduler; пустое выражение — расписание выключено, вернётся nil.
func NewScheduler(spec string, r Runner, logger *zap.SugaredLogger) (*Scheduler, error) {
	if spec == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cl := cronLogger{logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		_, err := r.RunScheduled(context.Background())
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Warnw("Backup: previous run still in progress, skipped")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("backup schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.logger.Infow("Backup: scheduler started")
	s.cron.Start()
}

// Stop ждёт завершения текущего запуска или отмены ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger направляет журнал cron в zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debugw("Cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Errorw("Cron: "+msg, append(kv, "error", err)...)
}
