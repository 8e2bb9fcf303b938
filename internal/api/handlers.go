package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/readfeed/internal/feed"
	"github.com/xaenox/readfeed/internal/models"
)

type performance struct {
	ResponseTimeMs int64 `json:"response_time_ms"`
}

type nextContentResponse struct {
	Content          *models.ContentItem     `json:"content"`
	DeliveryMetadata models.DeliveryMetadata `json:"delivery_metadata"`
	Performance      performance             `json:"performance"`
}

func feedTypeFromRequest(r *http.Request) models.FeedType {
	if ft := r.URL.Query().Get("feed_type"); ft != "" {
		return models.FeedType(ft)
	}
	return models.FeedTypeReading
}

// handleNextContent serves the next queued item. An exhausted or fully
// dangling feed degrades to synchronous on-demand generation instead of an
// error response.
func (s *Server) handleNextContent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	feedType := feedTypeFromRequest(r)

	item, meta, err := s.manager.ConsumeNext(r.Context(), userID, feedType)
	if errors.Is(err, feed.ErrFeedExhausted) || errors.Is(err, feed.ErrNoValidContent) || errors.Is(err, feed.ErrGenerationFailed) {
		s.logger.Info("Feed empty, generating on demand",
			zap.String("user_id", userID))
		item, err = s.manager.GenerateOnDemand(r.Context(), userID, feedType)
		if err != nil {
			s.logger.Error("On-demand generation failed",
				zap.String("user_id", userID), zap.Error(err))
			s.writeError(w, http.StatusBadGateway, "content generation unavailable")
			return
		}
		meta = models.DeliveryMetadata{FromFeed: false}
	} else if err != nil {
		s.logger.Error("Failed to serve next content",
			zap.String("user_id", userID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "feed store unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, nextContentResponse{
		Content:          item,
		DeliveryMetadata: meta,
		Performance:      performance{ResponseTimeMs: time.Since(start).Milliseconds()},
	})
}

type generateFeedRequest struct {
	UserID   string `json:"user_id"`
	FeedType string `json:"feed_type"`
}

type generateFeedResponse struct {
	FeedID    string    `json:"feed_id"`
	ItemCount int       `json:"item_count"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleGenerateFeed(w http.ResponseWriter, r *http.Request) {
	var req generateFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	feedType := models.FeedTypeReading
	if req.FeedType != "" {
		feedType = models.FeedType(req.FeedType)
	}

	entry, err := s.manager.GenerateOrReuse(r.Context(), req.UserID, feedType)
	if errors.Is(err, feed.ErrGenerationFailed) {
		s.writeError(w, http.StatusBadGateway, "content generation unavailable")
		return
	}
	if err != nil {
		s.logger.Error("Feed generation failed",
			zap.String("user_id", req.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "feed store unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, generateFeedResponse{
		FeedID:    entry.ID,
		ItemCount: len(entry.ContentQueue),
		ExpiresAt: entry.ExpiresAt,
	})
}

func (s *Server) handleFeedStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	report, err := s.manager.Status(r.Context(), userID)
	if err != nil {
		s.logger.Error("Status lookup failed",
			zap.String("user_id", userID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "feed store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fb.UserID == "" || fb.ContentID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and content_id are required")
		return
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		s.writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	if err := s.manager.RecordFeedback(r.Context(), fb); err != nil {
		s.logger.Error("Recording feedback failed",
			zap.String("user_id", fb.UserID),
			zap.String("content_id", fb.ContentID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not record feedback")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.logger.Error("Stats lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "feed store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleRefreshAll kicks a full warm pass in the background and returns
// immediately.
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	go func() {
		refreshed, err := s.manager.RefreshActiveFeeds(context.Background(), 7*24*time.Hour)
		if err != nil {
			s.logger.Error("Background refresh failed", zap.Error(err))
			return
		}
		s.logger.Info("Background refresh finished", zap.Int("refreshed", refreshed))
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}
