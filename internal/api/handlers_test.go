package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/feed"
	"github.com/xaenox/readfeed/internal/generator"
	"github.com/xaenox/readfeed/internal/models"
	"github.com/xaenox/readfeed/internal/storage"
)

// flakyGenerator fails its first failUntil calls and succeeds afterwards.
type flakyGenerator struct {
	mu        sync.Mutex
	calls     int
	failUntil int
}

func (g *flakyGenerator) Generate(ctx context.Context, spec generator.TopicSpec) (*generator.GeneratedContent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.failUntil {
		return nil, errors.New("upstream unavailable")
	}
	return &generator.GeneratedContent{Title: "About " + spec.Category, Body: "body", Tags: []string{spec.Category}}, nil
}

func newTestServer(store storage.Storage, gen generator.Generator) *Server {
	cfg := feed.DefaultConfig()
	cfg.RefreshBatchDelay = 0
	manager := feed.NewManager(store, gen, cfg, zap.NewNop())
	return NewServer(manager, zap.NewNop())
}

func seedFeed(t *testing.T, store storage.Storage, userID string, n int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	queue := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-item-%d", userID, i)
		item := &models.ContentItem{
			ID: id, UserID: userID, Category: "science",
			Title: "t", Body: "b", IsPreGenerated: true, CreatedAt: now,
		}
		if err := store.SaveContent(ctx, item); err != nil {
			t.Fatalf("SaveContent: %v", err)
		}
		queue = append(queue, id)
	}
	entry := &models.FeedEntry{
		ID: userID + "-feed", UserID: userID, FeedType: models.FeedTypeReading,
		ContentQueue: queue, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := store.UpsertFeed(ctx, entry); err != nil {
		t.Fatalf("UpsertFeed: %v", err)
	}
}

func TestNextContentFromFeed(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := newTestServer(store, generator.NewTemplateGenerator())
	seedFeed(t, store, "u1", 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/next?user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp nextContentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.DeliveryMetadata.FromFeed {
		t.Error("from_feed = false, want true")
	}
	if resp.DeliveryMetadata.RemainingContent != 4 {
		t.Errorf("remaining = %d, want 4", resp.DeliveryMetadata.RemainingContent)
	}
	if resp.Content == nil || resp.Content.ID == "" {
		t.Error("response has no content")
	}
}

func TestNextContentMissingUser(t *testing.T) {
	srv := newTestServer(storage.NewMemoryStorage(), generator.NewTemplateGenerator())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/next", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestNextContentFallsBackToOnDemand(t *testing.T) {
	store := storage.NewMemoryStorage()
	// Feed generation burns one failed call per fallback category; the
	// subsequent on-demand call succeeds.
	gen := &flakyGenerator{failUntil: len(feed.DefaultConfig().FallbackCategories)}
	srv := newTestServer(store, gen)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/next?user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp nextContentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DeliveryMetadata.FromFeed {
		t.Error("from_feed = true, want false for on-demand fallback")
	}
	if resp.Content == nil || resp.Content.IsPreGenerated {
		t.Error("expected a freshly generated item")
	}
}

func TestGenerateFeedEndpoint(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := newTestServer(store, generator.NewTemplateGenerator())

	body, _ := json.Marshal(map[string]string{"user_id": "u1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feeds/generate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp generateFeedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FeedID == "" {
		t.Error("feed_id empty")
	}
	if resp.ItemCount < feed.DefaultConfig().MinFeedSize {
		t.Errorf("item_count = %d, want >= %d", resp.ItemCount, feed.DefaultConfig().MinFeedSize)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Errorf("expires_at = %v, want in the future", resp.ExpiresAt)
	}
}

func TestFeedStatusEndpoint(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := newTestServer(store, generator.NewTemplateGenerator())
	seedFeed(t, store, "u1", 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feeds/status?user_id=u1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var report feed.StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Feeds) != 1 {
		t.Fatalf("feeds = %d, want 1", len(report.Feeds))
	}
	if report.Recommendations.FeedHealth != feed.HealthHealthy {
		t.Errorf("feed health = %q, want healthy", report.Recommendations.FeedHealth)
	}
}

func TestFeedbackValidation(t *testing.T) {
	srv := newTestServer(storage.NewMemoryStorage(), generator.NewTemplateGenerator())

	body, _ := json.Marshal(models.Feedback{UserID: "u1", ContentID: "c1", Rating: 9})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFeedbackRecorded(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := newTestServer(store, generator.NewTemplateGenerator())
	ctx := context.Background()

	item := &models.ContentItem{ID: "c1", UserID: "u1", Category: "science", CreatedAt: time.Now().UTC()}
	if err := store.SaveContent(ctx, item); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}

	body, _ := json.Marshal(models.Feedback{UserID: "u1", ContentID: "c1", Rating: 4})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	updated, err := store.GetContent(ctx, "c1")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if updated.Engagement != 0.8 {
		t.Errorf("engagement = %f, want 0.8", updated.Engagement)
	}
}

func TestStatsEndpoint(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := newTestServer(store, generator.NewTemplateGenerator())
	seedFeed(t, store, "u1", 5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var stats feed.SystemStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.ValidFeeds != 1 {
		t.Errorf("valid_feeds = %d, want 1", stats.ValidFeeds)
	}
	if stats.ContentItems != 5 {
		t.Errorf("content_items = %d, want 5", stats.ContentItems)
	}
}

func TestRefreshAllAccepted(t *testing.T) {
	srv := newTestServer(storage.NewMemoryStorage(), generator.NewTemplateGenerator())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
