package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/stargazy/nifty/internal/contextstore"
	"github.com/stargazy/nifty/internal/database"
)

// Cron runs the periodic maintenance jobs: decaying idle conversation
// context and pruning the message archive.
type Cron struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewCron creates the maintenance scheduler. Context cleanup runs hourly;
// archive pruning and VACUUM run daily, dropping messages older than
// retainDays.
func NewCron(logger *slog.Logger, contexts *contextstore.Store, store database.Store, retainDays int) (*Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "cron")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	c := &Cron{scheduler: s, logger: log}

	_, err = s.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			log.Info("running context cleanup")
			contexts.Cleanup()
		}),
		gocron.WithName("context_cleanup"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule context cleanup: %w", err)
	}

	if store != nil && retainDays > 0 {
		_, err = s.NewJob(
			gocron.DurationJob(24*time.Hour),
			gocron.NewTask(func(ctx context.Context) {
				cutoff := time.Now().AddDate(0, 0, -retainDays)
				n, err := store.PruneBefore(ctx, cutoff)
				if err != nil {
					log.Error("archive prune failed", "error", err)
					return
				}
				log.Info("archive pruned", "removed", n, "cutoff", cutoff)
				if err := store.Maintenance(ctx); err != nil {
					log.Error("database maintenance failed", "error", err)
				}
			}, context.Background()),
			gocron.WithName("archive_maintenance"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule archive maintenance: %w", err)
		}
	}

	return c, nil
}

// Start begins running scheduled jobs.
func (c *Cron) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("cron is already running")
	}
	c.scheduler.Start()
	c.running = true
	c.logger.Info("cron started", "jobs", len(c.scheduler.Jobs()))
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (c *Cron) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	if err := c.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down cron: %w", err)
	}
	c.logger.Info("cron stopped")
	return nil
}
