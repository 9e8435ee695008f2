package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Retention prunes aged conversation turns and terminal tasks on a
// schedule. Memories and preferences are never pruned.
type Retention struct {
	store    *Store
	logger   zerolog.Logger
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

// RetentionConfig holds retention configuration.
type RetentionConfig struct {
	Store    *Store
	Logger   zerolog.Logger
	MaxAge   time.Duration // age at which turns and finished tasks expire
	Schedule string        // cron expression; defaults to hourly
}

// NewRetention creates a retention service.
func NewRetention(cfg RetentionConfig) (*Retention, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}

	return &Retention{
		store:    cfg.Store,
		logger:   cfg.Logger,
		maxAge:   cfg.MaxAge,
		schedule: cfg.Schedule,
	}, nil
}

// Start schedules periodic pruning until Stop is called.
func (r *Retention) Start() error {
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if _, err := r.Prune(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("Retention prune failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule: %w", err)
	}

	c.Start()
	r.cron = c
	r.logger.Info().
		Str("schedule", r.schedule).
		Dur("max_age", r.maxAge).
		Msg("Retention started")
	return nil
}

// Stop halts the schedule. In-flight prunes run to completion.
func (r *Retention) Stop() {
	if r.cron != nil {
		r.cron.Stop()
		r.cron = nil
	}
}

// Prune deletes turns older than the retention window and tasks that
// reached a terminal status before it. Returns rows removed.
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.maxAge).UnixNano()

	turnsRes, err := r.store.db.ExecContext(ctx,
		"DELETE FROM turns WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	turns, _ := turnsRes.RowsAffected()

	tasksRes, err := r.store.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?",
		string(TaskCompleted), string(TaskFailed), cutoff)
	if err != nil {
		return turns, fmt.Errorf("failed to prune tasks: %w", err)
	}
	tasks, _ := tasksRes.RowsAffected()

	removed := turns + tasks
	if removed > 0 {
		r.logger.Info().
			Int64("turns", turns).
			Int64("tasks", tasks).
			Msg("Retention prune completed")
	}
	return removed, nil
}
