// Package scheduler runs recurring transfer passes on a cron expression.
// Because the transfer is idempotent, a recurring run degrades to a cheap
// diff pass whenever the source has not changed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"swift2s3/pkg/models"
)

// Runner executes one transfer pass. The coordinator satisfies this.
type Runner interface {
	Execute(ctx context.Context, req models.TransferRequest) error
}

// Schedule is the bookkeeping for one recurring transfer.
type Schedule struct {
	CronExpr  string                 `json:"cron_expr"`
	Request   models.TransferRequest `json:"request"`
	LastRun   time.Time              `json:"last_run"`
	NextRun   time.Time              `json:"next_run"`
	RunCount  int                    `json:"run_count"`
	FailCount int                    `json:"fail_count"`
}

// Scheduler manages recurring transfer runs.
type Scheduler struct {
	mu       sync.RWMutex
	cron     *cron.Cron
	schedule *Schedule
	entry    cron.EntryID
	runner   Runner
	log      zerolog.Logger
	running  bool
}

// NewScheduler creates a scheduler around a runner.
func NewScheduler(runner Runner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		log:    log,
	}
}

// Set registers the recurring transfer. Only one schedule is held at a time;
// setting a new one replaces the previous.
func (s *Scheduler) Set(ctx context.Context, cronExpr string, req models.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule != nil {
		s.cron.Remove(s.entry)
	}

	schedule := &Schedule{CronExpr: cronExpr, Request: req}

	entry, err := s.cron.AddFunc(cronExpr, func() {
		s.execute(ctx, schedule)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.schedule = schedule
	s.entry = entry
	s.refreshNextRun()

	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	return nil
}

// Snapshot returns a copy of the current schedule bookkeeping.
func (s *Scheduler) Snapshot() (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.schedule == nil {
		return Schedule{}, false
	}
	return *s.schedule, true
}

func (s *Scheduler) execute(ctx context.Context, schedule *Schedule) {
	s.log.Info().Str("cron", schedule.CronExpr).Msg("scheduled transfer starting")

	err := s.runner.Execute(ctx, schedule.Request)

	s.mu.Lock()
	schedule.LastRun = time.Now()
	schedule.RunCount++
	if err != nil {
		schedule.FailCount++
	}
	s.refreshNextRun()
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("scheduled transfer failed")
		return
	}

	s.log.Info().Msg("scheduled transfer finished")
}

// refreshNextRun must be called with the mutex held.
func (s *Scheduler) refreshNextRun() {
	if s.schedule == nil {
		return
	}

	entry := s.cron.Entry(s.entry)
	s.schedule.NextRun = entry.Next
}
