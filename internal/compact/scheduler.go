package compact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a compaction job on a cron schedule such as "@every 1h"
// or "0 */6 * * *". Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
	id   cron.EntryID
	log  *slog.Logger
}

// NewScheduler registers job under spec. timeout bounds each run; zero
// means no bound.
func NewScheduler(spec string, timeout time.Duration, job func(context.Context) error, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "compact-scheduler")
	cl := cronLogger{log}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	id, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := job(ctx); err != nil {
			log.Error("scheduled compaction failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid compaction schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, id: id, log: log}, nil
}

// ValidateSchedule reports whether spec parses.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid compaction schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins running in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("compaction scheduler started", "next", s.Next())
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// Stop halts the schedule and waits for a running job to finish or ctx to
// end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
