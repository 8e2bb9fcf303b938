package models

import "time"

// BehaviorProfile is a derived summary of a user's historical preferences.
// It is recomputed from scratch on every profiling pass and never hand-edited.
type BehaviorProfile struct {
	UserID               string             `json:"user_id"`
	PreferredCategories  []string           `json:"preferred_categories"`
	PreferredDifficulty  Difficulty         `json:"preferred_difficulty"`
	PeakHours            []int              `json:"peak_hours"`
	AvgSessionMinutes    float64            `json:"avg_session_minutes"`
	FeatureUsageRatio    map[string]float64 `json:"feature_usage_ratio"`
	CompletionRate       float64            `json:"completion_rate"`
	ConsumptionRate      float64            `json:"consumption_rate"`
	InteractionFrequency float64            `json:"interaction_frequency"`
	EngagementScore      float64            `json:"engagement_score"`
	ExtraTags            map[string]string  `json:"extra_tags,omitempty"`
	LastUpdated          time.Time          `json:"last_updated"`
}

// Session is one historical usage session, read from the interaction log.
type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Feature         string    `json:"feature"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes float64   `json:"duration_minutes"`
}
