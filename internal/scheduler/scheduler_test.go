package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/feed"
	"github.com/xaenox/readfeed/internal/generator"
	"github.com/xaenox/readfeed/internal/models"
	"github.com/xaenox/readfeed/internal/storage"
)

func newTestScheduler(store storage.Storage) *Scheduler {
	feedCfg := feed.DefaultConfig()
	feedCfg.RefreshBatchDelay = 0
	manager := feed.NewManager(store, generator.NewTemplateGenerator(), feedCfg, zap.NewNop())
	return New(manager, store, DefaultConfig(), zap.NewNop())
}

func TestRunTaskUnknown(t *testing.T) {
	s := newTestScheduler(storage.NewMemoryStorage())
	if err := s.RunTask(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestOverlappingRunSkipped(t *testing.T) {
	s := newTestScheduler(storage.NewMemoryStorage())

	started := make(chan struct{})
	release := make(chan struct{})
	slow := &task{
		name: "slow",
		fn: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runTask(context.Background(), slow)
	}()

	<-started
	// Second run must return immediately without executing fn again; if it
	// executed, close(started) would panic.
	s.runTask(context.Background(), slow)

	close(release)
	wg.Wait()

	if slow.running.Load() {
		t.Error("running flag not cleared after run")
	}
}

func TestPanicIsolated(t *testing.T) {
	s := newTestScheduler(storage.NewMemoryStorage())

	panicky := &task{
		name: "panicky",
		fn: func(ctx context.Context) error {
			panic("boom")
		},
	}

	// Must not propagate.
	s.runTask(context.Background(), panicky)

	if panicky.running.Load() {
		t.Error("running flag not cleared after panic")
	}
}

func TestFailingTaskDoesNotBlockOthers(t *testing.T) {
	s := newTestScheduler(storage.NewMemoryStorage())

	failing := &task{
		name: "failing",
		fn: func(ctx context.Context) error {
			return errors.New("task error")
		},
	}
	s.runTask(context.Background(), failing)

	// Siblings still run normally afterwards.
	if err := s.RunTask(context.Background(), "cleanup_expired"); err != nil {
		t.Fatalf("cleanup_expired after sibling failure: %v", err)
	}
}

func TestCleanupEvictsExpiredFeed(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestScheduler(store)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &models.FeedEntry{
		ID:        "f1",
		UserID:    "u1",
		FeedType:  models.FeedTypeReading,
		CreatedAt: now.Add(-25 * time.Hour),
		ExpiresAt: now.Add(-time.Second),
	}
	if err := store.UpsertFeed(ctx, entry); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
	stale := &models.ContentItem{
		ID:             "stale",
		UserID:         "u1",
		IsPreGenerated: true,
		CreatedAt:      now.Add(-8 * 24 * time.Hour),
	}
	if err := store.SaveContent(ctx, stale); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}

	if err := s.RunTask(ctx, "cleanup_expired"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	if _, err := store.GetFeed(ctx, "u1", models.FeedTypeReading); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired feed still present, err = %v", err)
	}
	if _, err := store.GetContent(ctx, "stale"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("stale content still present, err = %v", err)
	}
}

func TestNewUserFeedsOnboardsActiveUsers(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestScheduler(store)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		sess := &models.Session{
			ID:        fmt.Sprintf("s-%d", i),
			UserID:    fmt.Sprintf("user-%d", i),
			StartedAt: now.Add(-time.Hour),
		}
		if err := store.RecordSession(ctx, sess); err != nil {
			t.Fatalf("RecordSession: %v", err)
		}
	}

	if err := s.RunTask(ctx, "new_user_feeds"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	for i := 0; i < 3; i++ {
		entry, err := store.GetFeed(ctx, fmt.Sprintf("user-%d", i), models.FeedTypeReading)
		if err != nil {
			t.Fatalf("GetFeed(user-%d): %v", i, err)
		}
		if !entry.Valid(time.Now().UTC()) {
			t.Errorf("user-%d feed not valid after onboarding", i)
		}
	}
}

func TestUpdateAnalyticsRecomputesProfiles(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestScheduler(store)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &models.Session{ID: "s1", UserID: "u1", Feature: "reading", StartedAt: now.Add(-time.Hour), DurationMinutes: 12}
	if err := store.RecordSession(ctx, sess); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}

	if err := s.RunTask(ctx, "update_analytics"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	profile, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.AvgSessionMinutes != 12 {
		t.Errorf("avg session = %f, want 12", profile.AvgSessionMinutes)
	}
}

func TestPeakPrepWarmsMatchingUsers(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestScheduler(store)
	ctx := context.Background()
	now := time.Now()

	sess := &models.Session{ID: "s1", UserID: "u1", StartedAt: now.UTC().Add(-time.Hour)}
	if err := store.RecordSession(ctx, sess); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	profile := &models.BehaviorProfile{
		UserID:      "u1",
		PeakHours:   []int{(now.Hour() + 1) % 24},
		LastUpdated: now.UTC(),
	}
	if err := store.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	if err := s.RunTask(ctx, "peak_prep"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	entry, err := store.GetFeed(ctx, "u1", models.FeedTypeReading)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if !entry.Valid(time.Now().UTC()) {
		t.Error("feed not warmed for peak-hour user")
	}
}

func TestDailyHealthRefreshesLowEngagement(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestScheduler(store)
	ctx := context.Background()
	now := time.Now().UTC()

	sess := &models.Session{ID: "s1", UserID: "u1", StartedAt: now.Add(-time.Hour)}
	if err := store.RecordSession(ctx, sess); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	profile := &models.BehaviorProfile{UserID: "u1", EngagementScore: 0.1, LastUpdated: now}
	if err := store.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	if err := s.RunTask(ctx, "daily_health"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	if _, err := store.GetFeed(ctx, "u1", models.FeedTypeReading); err != nil {
		t.Errorf("low-engagement user has no feed after audit: %v", err)
	}
}

func TestUntilNextHour(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	wait := untilNextHour(base, []int{7, 12, 17})
	if wait != 90*time.Minute {
		t.Errorf("wait = %v, want 1h30m until 12:00", wait)
	}

	// All hours already past today: first slot tomorrow.
	wait = untilNextHour(base, []int{7})
	if wait != 20*time.Hour+30*time.Minute {
		t.Errorf("wait = %v, want 20h30m until 07:00 tomorrow", wait)
	}
}
