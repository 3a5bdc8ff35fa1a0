package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. It receives the scheduler's context,
// which is cancelled on Stop.
type Job func(ctx context.Context) error

// Scheduler runs the bot's periodic jobs: the idle-game sweep and the daily report.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers fn under a cron spec (standard five fields or descriptors
// such as "@every 1m"). Failures are logged, never propagated.
func (s *Scheduler) AddJob(spec, name string, fn Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := fn(s.ctx); err != nil {
			log.Printf("❌ Scheduled job %q failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", name, spec, err)
	}
	log.Printf("📅 Job %q scheduled: %s UTC", name, spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("📅 Scheduler started with %d job(s)", len(s.cron.Entries()))
}

// Stop waits for running jobs, then cancels their context.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cancel()
	log.Println("📅 Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
