package models

import "time"

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type FeedType string

const (
	FeedTypeReading FeedType = "reading"
)

// ContentItem is a single generated article owned by one user.
type ContentItem struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Category        string            `json:"category"`
	Difficulty      Difficulty        `json:"difficulty"`
	TargetLength    int               `json:"target_length"`
	Title           string            `json:"title"`
	Body            string            `json:"body"`
	Tags            []string          `json:"tags"`
	IsPreGenerated  bool              `json:"is_pre_generated"`
	FeedPriority    int               `json:"feed_priority"`
	ReadingProgress float64           `json:"reading_progress"`
	Engagement      float64           `json:"engagement"`
	ExtraTags       map[string]string `json:"extra_tags,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
