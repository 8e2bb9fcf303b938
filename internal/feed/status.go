package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/models"
	"github.com/xaenox/readfeed/internal/storage"
)

const (
	HealthHealthy = "healthy"
	HealthLow     = "low"
	HealthNoFeed  = "no_feed"
)

type FeedStatus struct {
	FeedID           string    `json:"feed_id"`
	FeedType         string    `json:"feed_type"`
	RemainingContent int       `json:"remaining_content"`
	Valid            bool      `json:"valid"`
	ExpiresAt        time.Time `json:"expires_at"`
	AccessCount      int       `json:"access_count"`
	ContentConsumed  int       `json:"content_consumed"`
}

type Recommendations struct {
	FeedHealth string `json:"feed_health"`
}

type StatusReport struct {
	UserID          string                  `json:"user_id"`
	Feeds           []FeedStatus            `json:"feeds"`
	Analytics       *models.BehaviorProfile `json:"analytics,omitempty"`
	Recommendations Recommendations         `json:"recommendations"`
}

// Status summarizes a user's feeds and profile for the status endpoint.
func (m *Manager) Status(ctx context.Context, userID string) (*StatusReport, error) {
	now := time.Now().UTC()

	entries, err := m.store.ListFeedsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	report := &StatusReport{
		UserID:          userID,
		Feeds:           make([]FeedStatus, 0, len(entries)),
		Recommendations: Recommendations{FeedHealth: HealthNoFeed},
	}
	for _, entry := range entries {
		valid := entry.Valid(now)
		report.Feeds = append(report.Feeds, FeedStatus{
			FeedID:           entry.ID,
			FeedType:         string(entry.FeedType),
			RemainingContent: len(entry.ContentQueue),
			Valid:            valid,
			ExpiresAt:        entry.ExpiresAt,
			AccessCount:      entry.AccessCount,
			ContentConsumed:  entry.ContentConsumed,
		})
		if !valid {
			continue
		}
		if len(entry.ContentQueue) >= m.cfg.MinFeedSize {
			report.Recommendations.FeedHealth = HealthHealthy
		} else if report.Recommendations.FeedHealth != HealthHealthy {
			report.Recommendations.FeedHealth = HealthLow
		}
	}

	profile, err := m.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	report.Analytics = profile
	return report, nil
}

type SystemStats struct {
	ActiveUsers  int       `json:"active_users"`
	ValidFeeds   int       `json:"valid_feeds"`
	FeedCoverage float64   `json:"feed_coverage"`
	ContentItems int       `json:"content_items"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Stats reports system-wide feed coverage over users active within the last
// seven days.
func (m *Manager) Stats(ctx context.Context) (*SystemStats, error) {
	now := time.Now().UTC()

	users, err := m.store.ListActiveUsers(ctx, now.Add(-7*24*time.Hour), 0)
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	validFeeds, err := m.store.CountValidFeeds(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("counting feeds: %w", err)
	}
	contentCount, err := m.store.CountContent(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting content: %w", err)
	}

	stats := &SystemStats{
		ActiveUsers:  len(users),
		ValidFeeds:   validFeeds,
		ContentItems: contentCount,
		GeneratedAt:  now,
	}
	if len(users) > 0 {
		stats.FeedCoverage = float64(validFeeds) / float64(len(users))
	}
	return stats, nil
}

// RecordFeedback folds a rating into the item's engagement score and nudges
// the user's profile engagement. The feed queue is never touched.
func (m *Manager) RecordFeedback(ctx context.Context, fb models.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", fb.Rating)
	}

	item, err := m.store.GetContent(ctx, fb.ContentID)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}

	rated := float64(fb.Rating) / 5
	engagement := rated
	if item.Engagement > 0 {
		// Exponential moving average keeps old signal without a rating count.
		engagement = 0.7*item.Engagement + 0.3*rated
	}
	if err := m.store.UpdateContentEngagement(ctx, fb.ContentID, engagement); err != nil {
		return fmt.Errorf("updating engagement: %w", err)
	}

	var delta float64
	switch {
	case fb.Rating >= 4:
		delta = 0.01
	case fb.Rating <= 2:
		delta = -0.01
	}
	if delta != 0 {
		if err := m.store.UpdateProfileEngagement(ctx, fb.UserID, delta); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("updating profile engagement: %w", err)
		}
	}

	m.logger.Info("Recorded feedback",
		zap.String("user_id", fb.UserID),
		zap.String("content_id", fb.ContentID),
		zap.Int("rating", fb.Rating))
	return nil
}
