package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Refresher brings the generated data files up to date.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Notifier tells the active content that its data changed.
type Notifier interface {
	RefreshData() error
}

// Scheduler periodically refreshes the forecast files and asks the active
// content to reload its page data.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	notifier  Notifier
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. A nil refresher only notifies.
func New(interval time.Duration, refresher Refresher, notifier Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		notifier:  notifier,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	if _, err := s.scheduler.Every(minutes).Minutes().Do(s.RunNow); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// RunNow performs one refresh cycle.
func (s *Scheduler) RunNow() {
	s.logger.Debug("running refresh job")

	if s.refresher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.refresher.Refresh(ctx); err != nil {
			s.logger.Error("refresh failed", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.RefreshData(); err != nil {
			s.logger.Warn("failed to notify content", "error", err)
		}
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
