package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedrelay/feedrelay/app/cfg"
	"github.com/feedrelay/feedrelay/app/database"
)

type Handler struct {
	feedRepo    database.FeedRepository
	articleRepo database.ArticleRepository
}

func NewHandler(feedRepo database.FeedRepository, articleRepo database.ArticleRepository) *Handler {
	return &Handler{
		feedRepo:    feedRepo,
		articleRepo: articleRepo,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   cfg.GetVersion(),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	} else {
		slog.Error("Database error", "operation", "get_feed_count", "error", err)
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats := map[string]interface{}{}

	if total, err := h.feedRepo.GetFeedCount(ctx); err == nil {
		stats["feeds"] = total
	}
	if active, err := h.feedRepo.GetActiveFeedCount(ctx); err == nil {
		stats["active_feeds"] = active
	}
	if records, err := h.articleRepo.GetRecordCount(ctx); err == nil {
		stats["article_records"] = records
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetFeedByID(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	feed, err := h.feedRepo.GetFeed(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if feed == nil {
		c.Status(http.StatusNotFound)
		return
	}

	info := gin.H{
		"id":                   feed.ID,
		"url":                  feed.URL,
		"title":                feed.Title,
		"owner_id":             feed.OwnerID,
		"refresh_rate_seconds": feed.EffectiveRateSeconds(),
		"health_status":        feed.HealthStatus,
		"fetch_failures":       feed.FetchFailures,
	}
	if feed.SlotOffsetMs != nil {
		info["slot_offset_ms"] = *feed.SlotOffsetMs
	}
	if feed.LastFetchedAt != nil {
		info["last_fetched_at"] = feed.LastFetchedAt.Format(time.RFC3339)
	}
	if feed.DisabledCode != "" {
		info["disabled_code"] = feed.DisabledCode
	}

	destinations, err := h.feedRepo.GetDestinations(c.Request.Context(), id)
	if err == nil {
		info["destinations"] = len(destinations)
	}

	c.JSON(http.StatusOK, info)
}
