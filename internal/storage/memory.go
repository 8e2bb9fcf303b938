package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/readfeed/internal/models"
)

type feedKey struct {
	userID   string
	feedType models.FeedType
}

// MemoryStorage is a fully in-process Storage used for local development and
// tests. All maps are guarded by a single RWMutex; values are copied on the
// way in and out so callers can never mutate stored state directly.
type MemoryStorage struct {
	mu       sync.RWMutex
	feeds    map[feedKey]*models.FeedEntry
	content  map[string]*models.ContentItem
	sessions map[string][]*models.Session
	profiles map[string]*models.BehaviorProfile
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		feeds:    make(map[feedKey]*models.FeedEntry),
		content:  make(map[string]*models.ContentItem),
		sessions: make(map[string][]*models.Session),
		profiles: make(map[string]*models.BehaviorProfile),
	}
}

func copyFeed(e *models.FeedEntry) *models.FeedEntry {
	c := *e
	c.ContentQueue = append([]string(nil), e.ContentQueue...)
	c.ProfileSnapshot = copyProfile(&e.ProfileSnapshot)
	return &c
}

func copyProfile(p *models.BehaviorProfile) models.BehaviorProfile {
	c := *p
	c.PreferredCategories = append([]string(nil), p.PreferredCategories...)
	c.PeakHours = append([]int(nil), p.PeakHours...)
	if p.FeatureUsageRatio != nil {
		c.FeatureUsageRatio = make(map[string]float64, len(p.FeatureUsageRatio))
		for k, v := range p.FeatureUsageRatio {
			c.FeatureUsageRatio[k] = v
		}
	}
	if p.ExtraTags != nil {
		c.ExtraTags = make(map[string]string, len(p.ExtraTags))
		for k, v := range p.ExtraTags {
			c.ExtraTags[k] = v
		}
	}
	return c
}

func copyContent(i *models.ContentItem) *models.ContentItem {
	c := *i
	c.Tags = append([]string(nil), i.Tags...)
	if i.ExtraTags != nil {
		c.ExtraTags = make(map[string]string, len(i.ExtraTags))
		for k, v := range i.ExtraTags {
			c.ExtraTags[k] = v
		}
	}
	return &c
}

// Feed methods

func (s *MemoryStorage) GetFeed(ctx context.Context, userID string, feedType models.FeedType) (*models.FeedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.feeds[feedKey{userID, feedType}]
	if !exists {
		return nil, ErrNotFound
	}
	return copyFeed(entry), nil
}

func (s *MemoryStorage) UpsertFeed(ctx context.Context, entry *models.FeedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feeds[feedKey{entry.UserID, entry.FeedType}] = copyFeed(entry)
	return nil
}

func (s *MemoryStorage) PopFront(ctx context.Context, userID string, feedType models.FeedType) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.feeds[feedKey{userID, feedType}]
	if !exists {
		return "", 0, ErrNotFound
	}
	if len(entry.ContentQueue) == 0 {
		return "", 0, ErrEmptyQueue
	}

	head := entry.ContentQueue[0]
	entry.ContentQueue = entry.ContentQueue[1:]
	return head, len(entry.ContentQueue), nil
}

func (s *MemoryStorage) RecordAccess(ctx context.Context, userID string, feedType models.FeedType, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.feeds[feedKey{userID, feedType}]
	if !exists {
		return ErrNotFound
	}
	entry.AccessCount++
	entry.ContentConsumed++
	entry.LastAccessed = now
	return nil
}

func (s *MemoryStorage) DeleteExpiredFeeds(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, entry := range s.feeds {
		if !now.Before(entry.ExpiresAt) {
			delete(s.feeds, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStorage) ListFeedsByUser(ctx context.Context, userID string) ([]*models.FeedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*models.FeedEntry
	for key, entry := range s.feeds {
		if key.userID == userID {
			entries = append(entries, copyFeed(entry))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FeedType < entries[j].FeedType })
	return entries, nil
}

func (s *MemoryStorage) CountValidFeeds(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.feeds {
		if now.Before(entry.ExpiresAt) {
			count++
		}
	}
	return count, nil
}

// Content methods

func (s *MemoryStorage) SaveContent(ctx context.Context, item *models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content[item.ID] = copyContent(item)
	return nil
}

func (s *MemoryStorage) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.content[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyContent(item), nil
}

func (s *MemoryStorage) UpdateContentEngagement(ctx context.Context, id string, engagement float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.content[id]
	if !exists {
		return ErrNotFound
	}
	item.Engagement = engagement
	return nil
}

func (s *MemoryStorage) DeleteStaleContent(ctx context.Context, cutoff time.Time, maxProgress float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, item := range s.content {
		if item.IsPreGenerated && item.ReadingProgress < maxProgress && item.CreatedAt.Before(cutoff) {
			delete(s.content, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStorage) CountContent(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.content), nil
}

// History methods

func (s *MemoryStorage) RecordSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *sess
	s.sessions[sess.UserID] = append(s.sessions[sess.UserID], &c)
	return nil
}

func (s *MemoryStorage) GetRecentSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sessions[userID]
	out := make([]*models.Session, 0, len(all))
	for _, sess := range all {
		c := *sess
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) GetRecentContent(ctx context.Context, userID string, limit int) ([]*models.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ContentItem
	for _, item := range s.content {
		if item.UserID == userID {
			out = append(out, copyContent(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) ListActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for userID, sessions := range s.sessions {
		for _, sess := range sessions {
			if !sess.StartedAt.Before(since) {
				seen[userID] = struct{}{}
				break
			}
		}
	}
	for key, entry := range s.feeds {
		if !entry.LastAccessed.Before(since) && !entry.LastAccessed.IsZero() {
			seen[key.userID] = struct{}{}
		}
	}

	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryStorage) GetProfile(ctx context.Context, userID string) (*models.BehaviorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, exists := s.profiles[userID]
	if !exists {
		return nil, ErrNotFound
	}
	c := copyProfile(profile)
	return &c, nil
}

func (s *MemoryStorage) UpsertProfile(ctx context.Context, profile *models.BehaviorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := copyProfile(profile)
	s.profiles[profile.UserID] = &c
	return nil
}

func (s *MemoryStorage) UpdateProfileEngagement(ctx context.Context, userID string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, exists := s.profiles[userID]
	if !exists {
		return ErrNotFound
	}
	score := profile.EngagementScore + delta
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	profile.EngagementScore = score
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
