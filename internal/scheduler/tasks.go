package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/models"
	"github.com/xaenox/readfeed/internal/storage"
)

// refreshFeeds warms the feed of every recently active user in bounded
// batches.
func (s *Scheduler) refreshFeeds(ctx context.Context) error {
	refreshed, err := s.manager.RefreshActiveFeeds(ctx, s.cfg.RefreshActiveWindow)
	if err != nil {
		return err
	}
	s.logger.Info("Refreshed feeds", zap.Int("count", refreshed))
	return nil
}

// cleanupExpired evicts expired feeds and reclaims pre-generated content that
// was never read within the retention window.
func (s *Scheduler) cleanupExpired(ctx context.Context) error {
	now := time.Now().UTC()

	feedsDeleted, err := s.store.DeleteExpiredFeeds(ctx, now)
	if err != nil {
		return fmt.Errorf("deleting expired feeds: %w", err)
	}
	contentDeleted, err := s.store.DeleteStaleContent(ctx, now.Add(-s.cfg.ContentRetention), s.cfg.ContentMaxProgress)
	if err != nil {
		return fmt.Errorf("deleting stale content: %w", err)
	}

	s.logger.Info("Cleanup finished",
		zap.Int("feeds_deleted", feedsDeleted),
		zap.Int("content_deleted", contentDeleted))
	return nil
}

// newUserFeeds generates a first feed for recently active users who have no
// valid one yet, bounded per run.
func (s *Scheduler) newUserFeeds(ctx context.Context) error {
	now := time.Now().UTC()

	users, err := s.store.ListActiveUsers(ctx, now.Add(-s.cfg.NewUserActiveWindow), 0)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}

	created := 0
	for _, userID := range users {
		if created >= s.cfg.NewUserLimit {
			break
		}
		entry, err := s.store.GetFeed(ctx, userID, models.FeedTypeReading)
		if err == nil && entry.Valid(now) {
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Skipping user, feed lookup failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if _, err := s.manager.GenerateOrReuse(ctx, userID, models.FeedTypeReading); err != nil {
			s.logger.Warn("Feed generation failed for new user",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		created++
	}

	s.logger.Info("Onboarded user feeds", zap.Int("created", created))
	return nil
}

// updateAnalytics recomputes behavior profiles for users active in the last
// day, bounded per run.
func (s *Scheduler) updateAnalytics(ctx context.Context) error {
	now := time.Now().UTC()

	users, err := s.store.ListActiveUsers(ctx, now.Add(-s.cfg.AnalyticsActiveWindow), s.cfg.AnalyticsLimit)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}

	updated := 0
	for _, userID := range users {
		if _, err := s.manager.ComputeProfile(ctx, userID); err != nil {
			s.logger.Warn("Profile recomputation failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		updated++
	}

	s.logger.Info("Updated profiles", zap.Int("count", updated))
	return nil
}

// peakPrep tops up feeds for users whose historical peak hours include the
// upcoming hour. Best-effort pre-warming; a miss is caught by refresh_feeds.
func (s *Scheduler) peakPrep(ctx context.Context) error {
	now := time.Now()
	nextHour := (now.Hour() + 1) % 24

	users, err := s.store.ListActiveUsers(ctx, now.UTC().Add(-s.cfg.RefreshActiveWindow), 0)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}

	warmed := 0
	for _, userID := range users {
		profile, err := s.store.GetProfile(ctx, userID)
		if err != nil {
			continue
		}
		if !containsHour(profile.PeakHours, nextHour) {
			continue
		}

		entry, err := s.store.GetFeed(ctx, userID, models.FeedTypeReading)
		if err == nil && entry.Valid(now.UTC()) && len(entry.ContentQueue) >= s.cfg.PeakMinRemaining {
			continue
		}
		if _, err := s.manager.GenerateOrReuse(ctx, userID, models.FeedTypeReading); err != nil {
			s.logger.Warn("Peak pre-warm failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		warmed++
	}

	s.logger.Info("Peak preparation finished",
		zap.Int("next_hour", nextHour),
		zap.Int("warmed", warmed))
	return nil
}

// dailyHealth measures feed coverage, refreshes a small sample of
// low-engagement users, and logs the overall classification.
func (s *Scheduler) dailyHealth(ctx context.Context) error {
	now := time.Now().UTC()

	users, err := s.store.ListActiveUsers(ctx, now.Add(-s.cfg.RefreshActiveWindow), 0)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}
	validFeeds, err := s.store.CountValidFeeds(ctx, now)
	if err != nil {
		return fmt.Errorf("counting feeds: %w", err)
	}

	coverage := 1.0
	if len(users) > 0 {
		coverage = float64(validFeeds) / float64(len(users))
	}

	refreshed := 0
	for _, userID := range users {
		if refreshed >= s.cfg.HealthSampleSize {
			break
		}
		profile, err := s.store.GetProfile(ctx, userID)
		if err != nil || profile.EngagementScore >= s.cfg.LowEngagementCutoff {
			continue
		}
		if _, err := s.manager.GenerateOrReuse(ctx, userID, models.FeedTypeReading); err != nil {
			s.logger.Warn("Low-engagement refresh failed",
				zap.String("user_id", userID), zap.Error(err))
			continue
		}
		refreshed++
	}

	status := "healthy"
	if coverage < s.cfg.HealthCoverageTarget {
		status = "needs_attention"
	}
	s.logger.Info("Daily health audit",
		zap.String("status", status),
		zap.Float64("coverage", coverage),
		zap.Int("active_users", len(users)),
		zap.Int("valid_feeds", validFeeds),
		zap.Int("low_engagement_refreshed", refreshed))
	return nil
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
