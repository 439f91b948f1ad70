package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultCleanupSchedule = "0 3 * * *"
)

// Pruner deletes persisted data older than a cutoff
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Cleanup runs retention for session records and other pruners on a cron schedule
type Cleanup struct {
	schedule  string
	retention time.Duration
	pruners   []Pruner
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewCleanup creates a cleanup handler. Empty schedule or zero retention use
// the defaults.
func NewCleanup(schedule string, retention time.Duration, pruners ...Pruner) (*Cleanup, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	if retention == 0 {
		retention = DefaultRetention
	}
	if retention < 0 {
		return nil, fmt.Errorf("retention cannot be negative")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
	}

	return &Cleanup{
		schedule:  schedule,
		retention: retention,
		pruners:   pruners,
		now:       time.Now,
	}, nil
}

// Start schedules the cleanup job
func (c *Cleanup) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, c.run); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	c.cron.Start()
	c.running = true

	log.Info().
		Str("schedule", c.schedule).
		Dur("retention", c.retention).
		Msg("Session cleanup started")

	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (c *Cleanup) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return fmt.Errorf("cleanup is not running")
	}

	<-c.cron.Stop().Done()
	c.running = false

	log.Info().Msg("Session cleanup stopped")
	return nil
}

func (c *Cleanup) run() {
	if _, err := c.CleanupNow(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to clean up old sessions")
	}
}

// CleanupNow prunes everything older than the retention window
func (c *Cleanup) CleanupNow(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.retention)
	total := 0

	for _, p := range c.pruners {
		n, err := p.PruneBefore(ctx, cutoff)
		total += n
		if err != nil {
			return total, err
		}
	}

	if total > 0 {
		log.Info().
			Int("deleted", total).
			Time("cutoff", cutoff).
			Msg("Cleaned up old records")
	}
	return total, nil
}

// IsRunning returns whether the cleanup is scheduled
func (c *Cleanup) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Retention returns the retention window
func (c *Cleanup) Retention() time.Duration {
	return c.retention
}

// Schedule returns the cron expression
func (c *Cleanup) Schedule() string {
	return c.schedule
}
