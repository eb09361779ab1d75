package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/store"
)

// ListFeeds serves the registered feed channels.
func (s *Server) ListFeeds(c *gin.Context) {
	feeds, err := s.store.ListChannels(c.Request.Context(), models.ChannelTypeFeed)
	if err != nil {
		slog.Error("Feed list query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if feeds == nil {
		feeds = []*models.Channel{}
	}
	c.JSON(http.StatusOK, gin.H{"feeds": feeds})
}

// AddFeed registers a feed channel. Idempotent on (name, type): re-posting
// an existing name refreshes the URL and returns the existing id.
func (s *Server) AddFeed(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		URL  string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and url are required"})
		return
	}

	id, inserted, err := s.coord.RegisterFeed(c.Request.Context(), req.Name, req.URL)
	if err != nil {
		slog.Error("Feed registration failed", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"id": id})
}

// DeleteFeed removes a feed channel registration.
func (s *Server) DeleteFeed(c *gin.Context) {
	err := s.coord.RemoveFeed(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}
	if err != nil {
		slog.Error("Feed removal failed", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "removal failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
