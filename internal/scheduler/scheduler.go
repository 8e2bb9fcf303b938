package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/feed"
	"github.com/xaenox/readfeed/internal/storage"
)

type Config struct {
	RefreshInterval       time.Duration
	RefreshActiveWindow   time.Duration
	CleanupInterval       time.Duration
	ContentRetention      time.Duration
	ContentMaxProgress    float64
	NewUserInterval       time.Duration
	NewUserActiveWindow   time.Duration
	NewUserLimit          int
	AnalyticsInterval     time.Duration
	AnalyticsActiveWindow time.Duration
	AnalyticsLimit        int
	PeakHoursOfDay        []int
	PeakMinRemaining      int
	HealthHour            int
	HealthCoverageTarget  float64
	HealthSampleSize      int
	LowEngagementCutoff   float64
}

func DefaultConfig() Config {
	return Config{
		RefreshInterval:       4 * time.Hour,
		RefreshActiveWindow:   7 * 24 * time.Hour,
		CleanupInterval:       time.Hour,
		ContentRetention:      7 * 24 * time.Hour,
		ContentMaxProgress:    0.1,
		NewUserInterval:       30 * time.Minute,
		NewUserActiveWindow:   3 * 24 * time.Hour,
		NewUserLimit:          20,
		AnalyticsInterval:     2 * time.Hour,
		AnalyticsActiveWindow: 24 * time.Hour,
		AnalyticsLimit:        50,
		PeakHoursOfDay:        []int{7, 12, 17},
		PeakMinRemaining:      3,
		HealthHour:            4,
		HealthCoverageTarget:  0.8,
		HealthSampleSize:      10,
		LowEngagementCutoff:   0.3,
	}
}

type task struct {
	name     string
	interval time.Duration
	atHours  []int
	running  atomic.Bool
	fn       func(ctx context.Context) error
}

// Scheduler runs the maintenance tasks on independent timers. Tasks never
// share state beyond the store, a slow run is skipped rather than overlapped,
// and a failing or panicking task cannot take its siblings down.
type Scheduler struct {
	manager *feed.Manager
	store   storage.Storage
	cfg     Config
	logger  *zap.Logger
	tasks   []*task
	wg      sync.WaitGroup
}

func New(manager *feed.Manager, store storage.Storage, cfg Config, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		manager: manager,
		store:   store,
		cfg:     cfg,
		logger:  logger,
	}
	s.tasks = []*task{
		{name: "refresh_feeds", interval: cfg.RefreshInterval, fn: s.refreshFeeds},
		{name: "cleanup_expired", interval: cfg.CleanupInterval, fn: s.cleanupExpired},
		{name: "new_user_feeds", interval: cfg.NewUserInterval, fn: s.newUserFeeds},
		{name: "update_analytics", interval: cfg.AnalyticsInterval, fn: s.updateAnalytics},
		{name: "peak_prep", atHours: cfg.PeakHoursOfDay, fn: s.peakPrep},
		{name: "daily_health", atHours: []int{cfg.HealthHour}, fn: s.dailyHealth},
	}
	return s
}

// Start launches one goroutine per task and returns immediately. Tasks run
// until ctx is cancelled; Wait blocks until they have all stopped.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		t := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if len(t.atHours) > 0 {
				s.runAtHours(ctx, t)
			} else {
				s.runEvery(ctx, t)
			}
		}()
	}
	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runEvery(ctx context.Context, t *task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTask(ctx, t)
		}
	}
}

func (s *Scheduler) runAtHours(ctx context.Context, t *task) {
	for {
		wait := untilNextHour(time.Now(), t.atHours)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.runTask(ctx, t)
		}
	}
}

// untilNextHour returns the duration until the next occurrence (top of the
// hour) of any hour in hours.
func untilNextHour(now time.Time, hours []int) time.Duration {
	next := now.AddDate(0, 0, 2)
	for _, h := range hours {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if candidate.Before(next) {
			next = candidate
		}
	}
	return next.Sub(now)
}

// runTask executes one task run with overlap protection and panic isolation.
func (s *Scheduler) runTask(ctx context.Context, t *task) {
	if !t.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping tick, previous run still in flight", zap.String("task", t.name))
		return
	}
	defer t.running.Store(false)

	start := time.Now()
	s.logger.Info("Task starting", zap.String("task", t.name))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.fn(ctx)
	}()

	if err != nil {
		s.logger.Error("Task failed",
			zap.String("task", t.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("Task completed",
		zap.String("task", t.name),
		zap.Duration("elapsed", time.Since(start)))
}

// RunTask triggers one named task immediately, honoring the overlap guard.
// Used by the admin trigger and in tests.
func (s *Scheduler) RunTask(ctx context.Context, name string) error {
	for _, t := range s.tasks {
		if t.name == name {
			s.runTask(ctx, t)
			return nil
		}
	}
	return fmt.Errorf("unknown task %q", name)
}
