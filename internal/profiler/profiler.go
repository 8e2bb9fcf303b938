package profiler

import (
	"sort"
	"time"

	"github.com/xaenox/readfeed/internal/models"
)

const (
	categoryWindowDays = 30
	maxCategories      = 5
	maxPeakHours       = 3
	completionCutoff   = 0.8

	defaultDifficulty     = models.DifficultyIntermediate
	defaultSessionMinutes = 15.0
)

// Compute reduces a user's recent sessions and content items into a
// BehaviorProfile. It is a pure function: the same window and the same now
// always produce the same profile, and it never fails — missing data falls
// back to documented defaults.
func Compute(userID string, sessions []*models.Session, items []*models.ContentItem, now time.Time) models.BehaviorProfile {
	profile := models.BehaviorProfile{
		UserID:              userID,
		PreferredCategories: topCategories(items, now),
		PreferredDifficulty: modalDifficulty(items),
		PeakHours:           peakHours(sessions),
		AvgSessionMinutes:   avgSessionMinutes(sessions),
		FeatureUsageRatio:   featureUsage(sessions),
		CompletionRate:      completionRate(items),
		LastUpdated:         now,
	}

	windowDays := historyWindowDays(sessions, items, now)
	profile.ConsumptionRate = float64(len(items)) / windowDays
	profile.InteractionFrequency = float64(len(sessions)) / windowDays

	profile.EngagementScore = clamp01(
		0.4*profile.CompletionRate +
			0.3*min1(profile.ConsumptionRate/2) +
			0.3*min1(profile.InteractionFrequency/3))

	return profile
}

// topCategories counts category occurrences over a trailing 30-day window and
// keeps the top five, most frequent first. Ties resolve to the category seen
// first in the window.
func topCategories(items []*models.ContentItem, now time.Time) []string {
	cutoff := now.AddDate(0, 0, -categoryWindowDays)
	counts := make(map[string]int)
	var order []string

	for _, item := range items {
		if item.Category == "" || item.CreatedAt.Before(cutoff) {
			continue
		}
		if _, seen := counts[item.Category]; !seen {
			order = append(order, item.Category)
		}
		counts[item.Category]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxCategories {
		order = order[:maxCategories]
	}
	return order
}

// modalDifficulty picks the most common difficulty label; on a tie the label
// seen first wins.
func modalDifficulty(items []*models.ContentItem) models.Difficulty {
	counts := make(map[models.Difficulty]int)
	var order []models.Difficulty

	for _, item := range items {
		if item.Difficulty == "" {
			continue
		}
		if _, seen := counts[item.Difficulty]; !seen {
			order = append(order, item.Difficulty)
		}
		counts[item.Difficulty]++
	}

	best := defaultDifficulty
	bestCount := 0
	for _, d := range order {
		if counts[d] > bestCount {
			best = d
			bestCount = counts[d]
		}
	}
	return best
}

// peakHours buckets session starts into 24 hourly bins and returns the three
// busiest hours in ascending hour order.
func peakHours(sessions []*models.Session) []int {
	var bins [24]int
	for _, sess := range sessions {
		bins[sess.StartedAt.Hour()]++
	}

	var hours []int
	for h := 0; h < 24; h++ {
		if bins[h] > 0 {
			hours = append(hours, h)
		}
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return bins[hours[i]] > bins[hours[j]]
	})
	if len(hours) > maxPeakHours {
		hours = hours[:maxPeakHours]
	}
	sort.Ints(hours)
	return hours
}

func avgSessionMinutes(sessions []*models.Session) float64 {
	sum := 0.0
	count := 0
	for _, sess := range sessions {
		if sess.DurationMinutes > 0 {
			sum += sess.DurationMinutes
			count++
		}
	}
	if count == 0 {
		return defaultSessionMinutes
	}
	return sum / float64(count)
}

func featureUsage(sessions []*models.Session) map[string]float64 {
	ratio := make(map[string]float64)
	if len(sessions) == 0 {
		return ratio
	}
	for _, sess := range sessions {
		feature := sess.Feature
		if feature == "" {
			feature = "general"
		}
		ratio[feature]++
	}
	total := float64(len(sessions))
	for feature := range ratio {
		ratio[feature] /= total
	}
	return ratio
}

func completionRate(items []*models.ContentItem) float64 {
	if len(items) == 0 {
		return 0
	}
	completed := 0
	for _, item := range items {
		if item.ReadingProgress >= completionCutoff {
			completed++
		}
	}
	return float64(completed) / float64(len(items))
}

// historyWindowDays measures the observed span of the window, floored at one
// day so the per-day rates stay finite.
func historyWindowDays(sessions []*models.Session, items []*models.ContentItem, now time.Time) float64 {
	oldest := now
	for _, sess := range sessions {
		if sess.StartedAt.Before(oldest) {
			oldest = sess.StartedAt
		}
	}
	for _, item := range items {
		if item.CreatedAt.Before(oldest) {
			oldest = item.CreatedAt
		}
	}
	days := now.Sub(oldest).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
