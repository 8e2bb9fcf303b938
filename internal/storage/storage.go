package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/readfeed/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrEmptyQueue is returned by PopFront when the feed exists but its
	// queue has been drained.
	ErrEmptyQueue = errors.New("storage: content queue empty")
)

type Storage interface {
	FeedStore
	ContentStore
	HistoryStore
	Close() error
}

// FeedStore holds one authoritative FeedEntry per (user, feed type) pair.
// PopFront, UpsertFeed and RecordAccess are the only feed mutators; all
// feed invariants are enforced through them.
type FeedStore interface {
	GetFeed(ctx context.Context, userID string, feedType models.FeedType) (*models.FeedEntry, error)
	UpsertFeed(ctx context.Context, entry *models.FeedEntry) error
	// PopFront atomically removes and returns the queue head. Concurrent
	// callers never receive the same id. Returns the remaining queue length
	// after removal.
	PopFront(ctx context.Context, userID string, feedType models.FeedType) (contentID string, remaining int, err error)
	// RecordAccess bumps the delivery counters after a successful serve.
	RecordAccess(ctx context.Context, userID string, feedType models.FeedType, now time.Time) error
	DeleteExpiredFeeds(ctx context.Context, now time.Time) (int, error)
	ListFeedsByUser(ctx context.Context, userID string) ([]*models.FeedEntry, error)
	CountValidFeeds(ctx context.Context, now time.Time) (int, error)
}

type ContentStore interface {
	SaveContent(ctx context.Context, item *models.ContentItem) error
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	UpdateContentEngagement(ctx context.Context, id string, engagement float64) error
	// DeleteStaleContent removes pre-generated items created before cutoff
	// whose reading progress is below maxProgress.
	DeleteStaleContent(ctx context.Context, cutoff time.Time, maxProgress float64) (int, error)
	CountContent(ctx context.Context) (int, error)
}

// HistoryStore exposes the interaction log and the derived behavior profiles.
type HistoryStore interface {
	RecordSession(ctx context.Context, s *models.Session) error
	GetRecentSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error)
	GetRecentContent(ctx context.Context, userID string, limit int) ([]*models.ContentItem, error)
	ListActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error)
	GetProfile(ctx context.Context, userID string) (*models.BehaviorProfile, error)
	UpsertProfile(ctx context.Context, profile *models.BehaviorProfile) error
	UpdateProfileEngagement(ctx context.Context, userID string, delta float64) error
}
