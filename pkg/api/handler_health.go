package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moecapital/refinery/pkg/database"
	"github.com/moecapital/refinery/pkg/version"
)

// Liveness answers the bare liveness check.
func (s *Server) Liveness(c *gin.Context) {
	c.String(http.StatusOK, "refinery %s", version.Version)
}

// Health reports service and database health.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"version":  version.Version,
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Version,
		"database": dbHealth,
	})
}
