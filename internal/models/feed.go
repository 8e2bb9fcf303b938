package models

import "time"

// FeedEntry is the persisted pre-generated queue for one (user, feed type)
// pair. Exactly one entry per pair is authoritative at a time; upserts
// replace, they never append.
type FeedEntry struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	FeedType        FeedType        `json:"feed_type"`
	ContentQueue    []string        `json:"content_queue"`
	ProfileSnapshot BehaviorProfile `json:"profile_snapshot"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	LastAccessed    time.Time       `json:"last_accessed"`
	AccessCount     int             `json:"access_count"`
	ContentConsumed int             `json:"content_consumed"`
	AvgEngagement   float64         `json:"avg_engagement"`
}

// Valid reports whether the entry may still serve content.
func (f *FeedEntry) Valid(now time.Time) bool {
	return now.Before(f.ExpiresAt)
}

// DeliveryMetadata describes how a content item was served.
type DeliveryMetadata struct {
	FromFeed         bool   `json:"from_feed"`
	FeedID           string `json:"feed_id,omitempty"`
	RemainingContent int    `json:"remaining_content"`
}

// Feedback is a user rating for one delivered content item.
type Feedback struct {
	UserID    string `json:"user_id"`
	ContentID string `json:"content_id"`
	Rating    int    `json:"rating"`
	Comments  string `json:"comments,omitempty"`
}
