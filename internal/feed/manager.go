package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/generator"
	"github.com/xaenox/readfeed/internal/models"
	"github.com/xaenox/readfeed/internal/profiler"
	"github.com/xaenox/readfeed/internal/storage"
)

type Config struct {
	MinFeedSize        int
	MaxFeedSize        int
	TTL                time.Duration
	CategoriesPerFeed  int
	ItemsPerCategory   int
	MinLength          int
	MaxLength          int
	OptimalMinLength   int
	OptimalMaxLength   int
	BasePriority       int
	SessionWindow      int
	ContentWindow      int
	RefreshBatchSize   int
	RefreshBatchDelay  time.Duration
	FallbackCategories []string
}

func DefaultConfig() Config {
	return Config{
		MinFeedSize:        3,
		MaxFeedSize:        20,
		TTL:                24 * time.Hour,
		CategoriesPerFeed:  3,
		ItemsPerCategory:   2,
		MinLength:          300,
		MaxLength:          700,
		OptimalMinLength:   400,
		OptimalMaxLength:   600,
		BasePriority:       5,
		SessionWindow:      50,
		ContentWindow:      100,
		RefreshBatchSize:   5,
		RefreshBatchDelay:  2 * time.Second,
		FallbackCategories: []string{"technology", "science", "culture", "health", "business"},
	}
}

// Manager owns the feed lifecycle: it builds feeds from behavior profiles and
// generated content, and serves them through the at-most-once consumption
// protocol. All collaborators are injected; Manager holds no global state.
type Manager struct {
	store     storage.Storage
	generator generator.Generator
	cfg       Config
	logger    *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewManager(store storage.Storage, gen generator.Generator, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		generator: gen,
		cfg:       cfg,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Manager) randomLength() int {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.cfg.MinLength + m.rng.Intn(m.cfg.MaxLength-m.cfg.MinLength+1)
}

// ComputeProfile rebuilds the user's behavior profile from the recent
// interaction window and persists it.
func (m *Manager) ComputeProfile(ctx context.Context, userID string) (*models.BehaviorProfile, error) {
	sessions, err := m.store.GetRecentSessions(ctx, userID, m.cfg.SessionWindow)
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	items, err := m.store.GetRecentContent(ctx, userID, m.cfg.ContentWindow)
	if err != nil {
		return nil, fmt.Errorf("loading content history: %w", err)
	}

	profile := profiler.Compute(userID, sessions, items, time.Now().UTC())
	if err := m.store.UpsertProfile(ctx, &profile); err != nil {
		return nil, fmt.Errorf("saving profile: %w", err)
	}
	return &profile, nil
}

// GenerateOrReuse returns the user's feed, rebuilding it when it is missing,
// expired, or running low. A valid feed with at least MinFeedSize queued
// items is returned untouched.
func (m *Manager) GenerateOrReuse(ctx context.Context, userID string, feedType models.FeedType) (*models.FeedEntry, error) {
	now := time.Now().UTC()

	existing, err := m.store.GetFeed(ctx, userID, feedType)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading feed: %w", err)
	}
	if existing != nil && existing.Valid(now) && len(existing.ContentQueue) >= m.cfg.MinFeedSize {
		return existing, nil
	}

	profile, err := m.ComputeProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	queue := m.generateQueue(ctx, userID, profile)
	if len(queue) == 0 {
		// Degrade to whatever is left of a still-valid feed rather than
		// discarding it for an empty replacement.
		if existing != nil && existing.Valid(now) {
			m.logger.Warn("Generation produced no items, keeping previous feed",
				zap.String("user_id", userID),
				zap.Int("remaining", len(existing.ContentQueue)))
			return existing, nil
		}
		return nil, ErrGenerationFailed
	}

	entry := &models.FeedEntry{
		ID:              uuid.New().String(),
		UserID:          userID,
		FeedType:        feedType,
		ContentQueue:    queue,
		ProfileSnapshot: *profile,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.cfg.TTL),
	}
	if err := m.store.UpsertFeed(ctx, entry); err != nil {
		return nil, fmt.Errorf("saving feed: %w", err)
	}

	m.logger.Info("Generated feed",
		zap.String("user_id", userID),
		zap.String("feed_type", string(feedType)),
		zap.String("feed_id", entry.ID),
		zap.Int("items", len(queue)))
	return entry, nil
}

// generateQueue produces content ids for the preferred categories, then tops
// up from the fallback list until the minimum feed size is met. A category
// whose generation fails is skipped, never retried.
func (m *Manager) generateQueue(ctx context.Context, userID string, profile *models.BehaviorProfile) []string {
	var queue []string

	categories := profile.PreferredCategories
	if len(categories) > m.cfg.CategoriesPerFeed {
		categories = categories[:m.cfg.CategoriesPerFeed]
	}
	for _, category := range categories {
		queue = m.generateItems(ctx, userID, category, profile, queue)
	}

	for _, category := range m.cfg.FallbackCategories {
		if len(queue) >= m.cfg.MinFeedSize {
			break
		}
		queue = m.generateItems(ctx, userID, category, profile, queue)
	}
	return queue
}

func (m *Manager) generateItems(ctx context.Context, userID, category string, profile *models.BehaviorProfile, queue []string) []string {
	for i := 0; i < m.cfg.ItemsPerCategory; i++ {
		if len(queue) >= m.cfg.MaxFeedSize {
			return queue
		}

		spec := generator.TopicSpec{
			Category:     category,
			Difficulty:   profile.PreferredDifficulty,
			TargetLength: m.randomLength(),
		}
		content, err := m.generator.Generate(ctx, spec)
		if err != nil {
			m.logger.Warn("Skipping category after generation failure",
				zap.String("user_id", userID),
				zap.String("category", category),
				zap.Error(err))
			return queue
		}

		item := &models.ContentItem{
			ID:             uuid.New().String(),
			UserID:         userID,
			Category:       category,
			Difficulty:     spec.Difficulty,
			TargetLength:   spec.TargetLength,
			Title:          content.Title,
			Body:           content.Body,
			Tags:           content.Tags,
			IsPreGenerated: true,
			FeedPriority:   m.priorityFor(spec, profile),
			CreatedAt:      time.Now().UTC(),
		}
		if err := m.store.SaveContent(ctx, item); err != nil {
			m.logger.Error("Failed to save generated content",
				zap.String("user_id", userID),
				zap.String("content_id", item.ID),
				zap.Error(err))
			continue
		}
		queue = append(queue, item.ID)
	}
	return queue
}

// priorityFor is an ordering hint only; feeds stay FIFO in this version.
func (m *Manager) priorityFor(spec generator.TopicSpec, profile *models.BehaviorProfile) int {
	priority := m.cfg.BasePriority
	if spec.Difficulty == profile.PreferredDifficulty {
		priority += 2
	}
	if spec.TargetLength >= m.cfg.OptimalMinLength && spec.TargetLength <= m.cfg.OptimalMaxLength {
		priority++
	}
	return priority
}

// ConsumeNext serves the next queued item. Each successful call removes
// exactly one id from the queue; dangling ids are discarded and the next one
// is tried instead, so a served item is never delivered twice.
func (m *Manager) ConsumeNext(ctx context.Context, userID string, feedType models.FeedType) (*models.ContentItem, models.DeliveryMetadata, error) {
	var meta models.DeliveryMetadata

	entry, err := m.GenerateOrReuse(ctx, userID, feedType)
	if err != nil {
		return nil, meta, err
	}
	if len(entry.ContentQueue) == 0 {
		return nil, meta, ErrFeedExhausted
	}

	attempts := len(entry.ContentQueue)
	for i := 0; i < attempts; i++ {
		contentID, remaining, err := m.store.PopFront(ctx, userID, feedType)
		if errors.Is(err, storage.ErrEmptyQueue) {
			// Drained by concurrent consumers since we looked.
			return nil, meta, ErrFeedExhausted
		}
		if err != nil {
			return nil, meta, fmt.Errorf("popping queue: %w", err)
		}

		item, err := m.store.GetContent(ctx, contentID)
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("Dropping dangling content reference",
				zap.String("user_id", userID),
				zap.String("content_id", contentID))
			continue
		}
		if err != nil {
			return nil, meta, fmt.Errorf("loading content: %w", err)
		}

		if err := m.store.RecordAccess(ctx, userID, feedType, time.Now().UTC()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, meta, fmt.Errorf("recording access: %w", err)
		}

		meta = models.DeliveryMetadata{
			FromFeed:         true,
			FeedID:           entry.ID,
			RemainingContent: remaining,
		}
		return item, meta, nil
	}

	return nil, meta, ErrNoValidContent
}

// GenerateOnDemand synchronously produces a single item outside the feed.
// It is the degradation path when the feed cannot serve.
func (m *Manager) GenerateOnDemand(ctx context.Context, userID string, feedType models.FeedType) (*models.ContentItem, error) {
	profile, err := m.store.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		profile, err = m.ComputeProfile(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	category := m.cfg.FallbackCategories[0]
	if len(profile.PreferredCategories) > 0 {
		category = profile.PreferredCategories[0]
	}

	spec := generator.TopicSpec{
		Category:     category,
		Difficulty:   profile.PreferredDifficulty,
		TargetLength: m.randomLength(),
	}
	content, err := m.generator.Generate(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("on-demand generation: %w", err)
	}

	item := &models.ContentItem{
		ID:           uuid.New().String(),
		UserID:       userID,
		Category:     category,
		Difficulty:   spec.Difficulty,
		TargetLength: spec.TargetLength,
		Title:        content.Title,
		Body:         content.Body,
		Tags:         content.Tags,
		FeedPriority: m.priorityFor(spec, profile),
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.SaveContent(ctx, item); err != nil {
		return nil, fmt.Errorf("saving on-demand content: %w", err)
	}
	return item, nil
}

// RefreshActiveFeeds warms feeds for every user active within activeWindow,
// in bounded batches with a pause in between so the generator is never
// saturated. Per-user failures are logged and skipped.
func (m *Manager) RefreshActiveFeeds(ctx context.Context, activeWindow time.Duration) (int, error) {
	users, err := m.store.ListActiveUsers(ctx, time.Now().UTC().Add(-activeWindow), 0)
	if err != nil {
		return 0, fmt.Errorf("listing active users: %w", err)
	}

	refreshed := 0
	for start := 0; start < len(users); start += m.cfg.RefreshBatchSize {
		end := start + m.cfg.RefreshBatchSize
		if end > len(users) {
			end = len(users)
		}
		for _, userID := range users[start:end] {
			if _, err := m.GenerateOrReuse(ctx, userID, models.FeedTypeReading); err != nil {
				m.logger.Warn("Feed refresh failed for user",
					zap.String("user_id", userID),
					zap.Error(err))
				continue
			}
			refreshed++
		}

		if end < len(users) {
			select {
			case <-ctx.Done():
				return refreshed, ctx.Err()
			case <-time.After(m.cfg.RefreshBatchDelay):
			}
		}
	}
	return refreshed, nil
}
