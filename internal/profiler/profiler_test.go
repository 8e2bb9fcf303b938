package profiler

import (
	"reflect"
	"testing"
	"time"

	"github.com/xaenox/readfeed/internal/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func session(hoursAgo int, feature string, minutes float64) *models.Session {
	return &models.Session{
		ID:              "s",
		UserID:          "u1",
		Feature:         feature,
		StartedAt:       testNow.Add(-time.Duration(hoursAgo) * time.Hour),
		DurationMinutes: minutes,
	}
}

func item(daysAgo int, category string, difficulty models.Difficulty, progress float64) *models.ContentItem {
	return &models.ContentItem{
		ID:              "c",
		UserID:          "u1",
		Category:        category,
		Difficulty:      difficulty,
		ReadingProgress: progress,
		CreatedAt:       testNow.AddDate(0, 0, -daysAgo),
	}
}

func TestComputeDefaults(t *testing.T) {
	profile := Compute("u1", nil, nil, testNow)

	if profile.PreferredDifficulty != models.DifficultyIntermediate {
		t.Errorf("difficulty = %q, want intermediate", profile.PreferredDifficulty)
	}
	if profile.AvgSessionMinutes != 15 {
		t.Errorf("avg session = %f, want 15", profile.AvgSessionMinutes)
	}
	if len(profile.PreferredCategories) != 0 {
		t.Errorf("categories = %v, want empty", profile.PreferredCategories)
	}
	if len(profile.PeakHours) != 0 {
		t.Errorf("peak hours = %v, want empty", profile.PeakHours)
	}
	if profile.EngagementScore != 0 {
		t.Errorf("engagement = %f, want 0", profile.EngagementScore)
	}
}

func TestComputeIdempotent(t *testing.T) {
	sessions := []*models.Session{
		session(1, "reading", 20),
		session(5, "reading", 10),
		session(26, "quiz", 30),
	}
	items := []*models.ContentItem{
		item(1, "science", models.DifficultyAdvanced, 0.9),
		item(2, "science", models.DifficultyBeginner, 0.5),
		item(3, "culture", models.DifficultyAdvanced, 1.0),
	}

	first := Compute("u1", sessions, items, testNow)
	second := Compute("u1", sessions, items, testNow)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("profiles differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestTopCategoriesWindowAndOrder(t *testing.T) {
	items := []*models.ContentItem{
		item(1, "science", models.DifficultyBeginner, 0),
		item(2, "science", models.DifficultyBeginner, 0),
		item(2, "science", models.DifficultyBeginner, 0),
		item(3, "culture", models.DifficultyBeginner, 0),
		item(3, "culture", models.DifficultyBeginner, 0),
		item(4, "health", models.DifficultyBeginner, 0),
		// Outside the 30-day window, must not count.
		item(40, "travel", models.DifficultyBeginner, 0),
		item(40, "travel", models.DifficultyBeginner, 0),
		item(40, "travel", models.DifficultyBeginner, 0),
		item(40, "travel", models.DifficultyBeginner, 0),
	}

	profile := Compute("u1", nil, items, testNow)

	want := []string{"science", "culture", "health"}
	if !reflect.DeepEqual(profile.PreferredCategories, want) {
		t.Errorf("categories = %v, want %v", profile.PreferredCategories, want)
	}
}

func TestTopCategoriesCapped(t *testing.T) {
	items := []*models.ContentItem{
		item(1, "a", models.DifficultyBeginner, 0),
		item(1, "b", models.DifficultyBeginner, 0),
		item(1, "c", models.DifficultyBeginner, 0),
		item(1, "d", models.DifficultyBeginner, 0),
		item(1, "e", models.DifficultyBeginner, 0),
		item(1, "f", models.DifficultyBeginner, 0),
	}

	profile := Compute("u1", nil, items, testNow)
	if len(profile.PreferredCategories) != 5 {
		t.Errorf("got %d categories, want 5", len(profile.PreferredCategories))
	}
}

func TestModalDifficultyTieFirstSeen(t *testing.T) {
	items := []*models.ContentItem{
		item(1, "a", models.DifficultyBeginner, 0),
		item(1, "a", models.DifficultyAdvanced, 0),
		item(1, "a", models.DifficultyAdvanced, 0),
		item(1, "a", models.DifficultyBeginner, 0),
	}

	profile := Compute("u1", nil, items, testNow)
	if profile.PreferredDifficulty != models.DifficultyBeginner {
		t.Errorf("difficulty = %q, want beginner (first seen on tie)", profile.PreferredDifficulty)
	}
}

func TestPeakHoursTopThree(t *testing.T) {
	base := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	hourly := func(hour, n int) []*models.Session {
		out := make([]*models.Session, n)
		for i := range out {
			out[i] = &models.Session{UserID: "u1", StartedAt: base.Add(time.Duration(hour) * time.Hour)}
		}
		return out
	}

	var sessions []*models.Session
	sessions = append(sessions, hourly(8, 4)...)
	sessions = append(sessions, hourly(13, 3)...)
	sessions = append(sessions, hourly(20, 2)...)
	sessions = append(sessions, hourly(22, 1)...)

	profile := Compute("u1", sessions, nil, testNow)

	want := []int{8, 13, 20}
	if !reflect.DeepEqual(profile.PeakHours, want) {
		t.Errorf("peak hours = %v, want %v", profile.PeakHours, want)
	}
}

func TestAvgSessionSkipsNonPositive(t *testing.T) {
	sessions := []*models.Session{
		session(1, "reading", 20),
		session(2, "reading", 0),
		session(3, "reading", 10),
	}

	profile := Compute("u1", sessions, nil, testNow)
	if profile.AvgSessionMinutes != 15 {
		t.Errorf("avg session = %f, want 15", profile.AvgSessionMinutes)
	}
}

func TestFeatureUsageSumsToOne(t *testing.T) {
	sessions := []*models.Session{
		session(1, "reading", 10),
		session(2, "reading", 10),
		session(3, "quiz", 10),
		session(4, "", 10),
	}

	profile := Compute("u1", sessions, nil, testNow)

	sum := 0.0
	for _, v := range profile.FeatureUsageRatio {
		sum += v
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("usage ratios sum to %f, want 1", sum)
	}
	if profile.FeatureUsageRatio["reading"] != 0.5 {
		t.Errorf("reading ratio = %f, want 0.5", profile.FeatureUsageRatio["reading"])
	}
	if profile.FeatureUsageRatio["general"] != 0.25 {
		t.Errorf("general ratio = %f, want 0.25", profile.FeatureUsageRatio["general"])
	}
}

func TestEngagementScoreSaturates(t *testing.T) {
	// All activity within the last few hours: window floors at one day, all
	// items completed, rates exceed their caps, so every term saturates.
	sessions := []*models.Session{
		session(1, "reading", 20),
		session(2, "reading", 20),
		session(3, "reading", 20),
	}
	items := []*models.ContentItem{
		item(0, "science", models.DifficultyBeginner, 0.9),
		item(0, "science", models.DifficultyBeginner, 1.0),
	}

	profile := Compute("u1", sessions, items, testNow)

	if profile.CompletionRate != 1 {
		t.Errorf("completion rate = %f, want 1", profile.CompletionRate)
	}
	if profile.EngagementScore != 1 {
		t.Errorf("engagement = %f, want 1", profile.EngagementScore)
	}
}
