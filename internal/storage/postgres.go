package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	logger.Info("Database schema initialized",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

// Feed methods

const feedColumns = `id, user_id, feed_type, content_queue, profile_snapshot,
	created_at, expires_at, last_accessed, access_count, content_consumed, avg_engagement`

func scanFeed(row interface{ Scan(...any) error }) (*models.FeedEntry, error) {
	entry := &models.FeedEntry{}
	var queue pq.StringArray
	var profileJSON []byte
	var lastAccessed sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.FeedType,
		&queue,
		&profileJSON,
		&entry.CreatedAt,
		&entry.ExpiresAt,
		&lastAccessed,
		&entry.AccessCount,
		&entry.ContentConsumed,
		&entry.AvgEngagement,
	)
	if err != nil {
		return nil, err
	}

	entry.ContentQueue = []string(queue)
	if lastAccessed.Valid {
		entry.LastAccessed = lastAccessed.Time
	}
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &entry.ProfileSnapshot); err != nil {
			return nil, fmt.Errorf("error decoding profile snapshot: %w", err)
		}
	}
	return entry, nil
}

func (s *PostgresStorage) GetFeed(ctx context.Context, userID string, feedType models.FeedType) (*models.FeedEntry, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE user_id = $1 AND feed_type = $2`

	entry, err := scanFeed(s.db.QueryRowContext(ctx, query, userID, feedType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying feed: %w", err)
	}
	return entry, nil
}

func (s *PostgresStorage) UpsertFeed(ctx context.Context, entry *models.FeedEntry) error {
	profileJSON, err := json.Marshal(entry.ProfileSnapshot)
	if err != nil {
		return fmt.Errorf("error encoding profile snapshot: %w", err)
	}

	lastAccessed := sql.NullTime{Time: entry.LastAccessed, Valid: !entry.LastAccessed.IsZero()}

	query := `
		INSERT INTO feeds (id, user_id, feed_type, content_queue, profile_snapshot,
			created_at, expires_at, last_accessed, access_count, content_consumed, avg_engagement)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, feed_type) DO UPDATE SET
			id = EXCLUDED.id,
			content_queue = EXCLUDED.content_queue,
			profile_snapshot = EXCLUDED.profile_snapshot,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			last_accessed = EXCLUDED.last_accessed,
			access_count = EXCLUDED.access_count,
			content_consumed = EXCLUDED.content_consumed,
			avg_engagement = EXCLUDED.avg_engagement`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.FeedType,
		pq.Array(entry.ContentQueue),
		profileJSON,
		entry.CreatedAt,
		entry.ExpiresAt,
		lastAccessed,
		entry.AccessCount,
		entry.ContentConsumed,
		entry.AvgEngagement,
	)
	if err != nil {
		return fmt.Errorf("error upserting feed: %w", err)
	}
	return nil
}

// PopFront removes the queue head inside a row-locked transaction so that
// concurrent consumers never pop the same id.
func (s *PostgresStorage) PopFront(ctx context.Context, userID string, feedType models.FeedType) (string, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("error starting pop transaction: %w", err)
	}
	defer tx.Rollback()

	var queue pq.StringArray
	err = tx.QueryRowContext(ctx,
		`SELECT content_queue FROM feeds WHERE user_id = $1 AND feed_type = $2 FOR UPDATE`,
		userID, feedType).Scan(&queue)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("error locking feed: %w", err)
	}
	if len(queue) == 0 {
		return "", 0, ErrEmptyQueue
	}

	head := queue[0]
	rest := queue[1:]

	_, err = tx.ExecContext(ctx,
		`UPDATE feeds SET content_queue = $1 WHERE user_id = $2 AND feed_type = $3`,
		pq.Array(rest), userID, feedType)
	if err != nil {
		return "", 0, fmt.Errorf("error updating queue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("error committing pop: %w", err)
	}
	return head, len(rest), nil
}

func (s *PostgresStorage) RecordAccess(ctx context.Context, userID string, feedType models.FeedType, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE feeds
		SET access_count = access_count + 1,
			content_consumed = content_consumed + 1,
			last_accessed = $3
		WHERE user_id = $1 AND feed_type = $2`,
		userID, feedType, now)
	if err != nil {
		return fmt.Errorf("error recording access: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteExpiredFeeds(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM feeds WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired feeds: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *PostgresStorage) ListFeedsByUser(ctx context.Context, userID string) ([]*models.FeedEntry, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE user_id = $1 ORDER BY feed_type`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying feeds: %w", err)
	}
	defer rows.Close()

	var entries []*models.FeedEntry
	for rows.Next() {
		entry, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning feed: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStorage) CountValidFeeds(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds WHERE expires_at > $1`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting feeds: %w", err)
	}
	return count, nil
}

// Content methods

func (s *PostgresStorage) SaveContent(ctx context.Context, item *models.ContentItem) error {
	extraJSON, err := json.Marshal(item.ExtraTags)
	if err != nil {
		return fmt.Errorf("error encoding extra tags: %w", err)
	}

	query := `
		INSERT INTO content_items (id, user_id, category, difficulty, target_length,
			title, body, tags, is_pre_generated, feed_priority, reading_progress,
			engagement, extra_tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			tags = EXCLUDED.tags,
			reading_progress = EXCLUDED.reading_progress,
			engagement = EXCLUDED.engagement,
			extra_tags = EXCLUDED.extra_tags`

	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		item.UserID,
		item.Category,
		item.Difficulty,
		item.TargetLength,
		item.Title,
		item.Body,
		pq.Array(item.Tags),
		item.IsPreGenerated,
		item.FeedPriority,
		item.ReadingProgress,
		item.Engagement,
		extraJSON,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving content: %w", err)
	}
	return nil
}

func scanContent(row interface{ Scan(...any) error }) (*models.ContentItem, error) {
	item := &models.ContentItem{}
	var tags pq.StringArray
	var extraJSON []byte

	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Category,
		&item.Difficulty,
		&item.TargetLength,
		&item.Title,
		&item.Body,
		&tags,
		&item.IsPreGenerated,
		&item.FeedPriority,
		&item.ReadingProgress,
		&item.Engagement,
		&extraJSON,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Tags = []string(tags)
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &item.ExtraTags); err != nil {
			return nil, fmt.Errorf("error decoding extra tags: %w", err)
		}
	}
	return item, nil
}

const contentColumns = `id, user_id, category, difficulty, target_length, title, body,
	tags, is_pre_generated, feed_priority, reading_progress, engagement, extra_tags, created_at`

func (s *PostgresStorage) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`

	item, err := scanContent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying content: %w", err)
	}
	return item, nil
}

func (s *PostgresStorage) UpdateContentEngagement(ctx context.Context, id string, engagement float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET engagement = $1 WHERE id = $2`, engagement, id)
	if err != nil {
		return fmt.Errorf("error updating engagement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteStaleContent(ctx context.Context, cutoff time.Time, maxProgress float64) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM content_items
		WHERE is_pre_generated AND reading_progress < $1 AND created_at < $2`,
		maxProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting stale content: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *PostgresStorage) CountContent(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting content: %w", err)
	}
	return count, nil
}

// History methods

func (s *PostgresStorage) RecordSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, feature, started_at, duration_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		sess.ID, sess.UserID, sess.Feature, sess.StartedAt, sess.DurationMinutes)
	if err != nil {
		return fmt.Errorf("error recording session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetRecentSessions(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, feature, started_at, duration_minutes
		FROM sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Feature, &sess.StartedAt, &sess.DurationMinutes); err != nil {
			return nil, fmt.Errorf("error scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStorage) GetRecentContent(ctx context.Context, userID string, limit int) ([]*models.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying recent content: %w", err)
	}
	defer rows.Close()

	var items []*models.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning content: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStorage) ListActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error) {
	query := `
		SELECT user_id FROM (
			SELECT DISTINCT user_id FROM sessions WHERE started_at >= $1
			UNION
			SELECT DISTINCT user_id FROM feeds WHERE last_accessed >= $1
		) active
		ORDER BY user_id`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT $2`, since, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query, since)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("error scanning user id: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) GetProfile(ctx context.Context, userID string) (*models.BehaviorProfile, error) {
	profile := &models.BehaviorProfile{}
	var categories pq.StringArray
	var peakHours pq.Int64Array
	var usageJSON, extraJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, preferred_categories, preferred_difficulty, peak_hours,
			avg_session_minutes, feature_usage_ratio, completion_rate,
			consumption_rate, interaction_frequency, engagement_score,
			extra_tags, last_updated
		FROM behavior_profiles WHERE user_id = $1`, userID).Scan(
		&profile.UserID,
		&categories,
		&profile.PreferredDifficulty,
		&peakHours,
		&profile.AvgSessionMinutes,
		&usageJSON,
		&profile.CompletionRate,
		&profile.ConsumptionRate,
		&profile.InteractionFrequency,
		&profile.EngagementScore,
		&extraJSON,
		&profile.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying profile: %w", err)
	}

	profile.PreferredCategories = []string(categories)
	profile.PeakHours = make([]int, 0, len(peakHours))
	for _, h := range peakHours {
		profile.PeakHours = append(profile.PeakHours, int(h))
	}
	if len(usageJSON) > 0 {
		if err := json.Unmarshal(usageJSON, &profile.FeatureUsageRatio); err != nil {
			return nil, fmt.Errorf("error decoding feature usage: %w", err)
		}
	}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &profile.ExtraTags); err != nil {
			return nil, fmt.Errorf("error decoding extra tags: %w", err)
		}
	}
	return profile, nil
}

func (s *PostgresStorage) UpsertProfile(ctx context.Context, profile *models.BehaviorProfile) error {
	usageJSON, err := json.Marshal(profile.FeatureUsageRatio)
	if err != nil {
		return fmt.Errorf("error encoding feature usage: %w", err)
	}
	extraJSON, err := json.Marshal(profile.ExtraTags)
	if err != nil {
		return fmt.Errorf("error encoding extra tags: %w", err)
	}

	peakHours := make(pq.Int64Array, 0, len(profile.PeakHours))
	for _, h := range profile.PeakHours {
		peakHours = append(peakHours, int64(h))
	}

	query := `
		INSERT INTO behavior_profiles (user_id, preferred_categories, preferred_difficulty,
			peak_hours, avg_session_minutes, feature_usage_ratio, completion_rate,
			consumption_rate, interaction_frequency, engagement_score, extra_tags, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_categories = EXCLUDED.preferred_categories,
			preferred_difficulty = EXCLUDED.preferred_difficulty,
			peak_hours = EXCLUDED.peak_hours,
			avg_session_minutes = EXCLUDED.avg_session_minutes,
			feature_usage_ratio = EXCLUDED.feature_usage_ratio,
			completion_rate = EXCLUDED.completion_rate,
			consumption_rate = EXCLUDED.consumption_rate,
			interaction_frequency = EXCLUDED.interaction_frequency,
			engagement_score = EXCLUDED.engagement_score,
			extra_tags = EXCLUDED.extra_tags,
			last_updated = EXCLUDED.last_updated`

	_, err = s.db.ExecContext(ctx, query,
		profile.UserID,
		pq.Array(profile.PreferredCategories),
		profile.PreferredDifficulty,
		peakHours,
		profile.AvgSessionMinutes,
		usageJSON,
		profile.CompletionRate,
		profile.ConsumptionRate,
		profile.InteractionFrequency,
		profile.EngagementScore,
		extraJSON,
		profile.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("error upserting profile: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateProfileEngagement(ctx context.Context, userID string, delta float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE behavior_profiles
		SET engagement_score = LEAST(1, GREATEST(0, engagement_score + $1))
		WHERE user_id = $2`, delta, userID)
	if err != nil {
		return fmt.Errorf("error updating profile engagement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
