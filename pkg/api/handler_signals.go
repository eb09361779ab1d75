package api

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moecapital/refinery/pkg/models"
)

// List and export bounds.
const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxExportRows    = 1000
)

// ListSignals serves the paginated, filterable signal list. The unfiltered
// first page is served from a short-TTL cache invalidated by signal writes.
func (s *Server) ListSignals(c *gin.Context) {
	filters, err := parseSignalFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cacheable := isFirstPageUnfiltered(filters)
	if cacheable {
		if page, ok := s.signalsCache.Get(s.coord.SignalGeneration()); ok {
			respondSignals(c, page.Signals, page.Total, filters)
			return
		}
	}

	signals, total, err := s.store.ListSignals(c.Request.Context(), filters)
	if err != nil {
		slog.Error("Signal list query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if cacheable {
		s.signalsCache.Add(s.coord.SignalGeneration(), signalsPage{Signals: signals, Total: total})
	}
	respondSignals(c, signals, total, filters)
}

func respondSignals(c *gin.Context, signals []*models.Signal, total int, filters models.SignalFilters) {
	if signals == nil {
		signals = []*models.Signal{}
	}
	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"total":   total,
		"limit":   filters.Limit,
		"offset":  filters.Offset,
	})
}

// ExportSignals dumps up to maxExportRows signals as JSON or CSV.
func (s *Server) ExportSignals(c *gin.Context) {
	filters, err := parseSignalFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filters.Limit = maxExportRows
	filters.Offset = 0

	signals, _, err := s.store.ListSignals(c.Request.Context(), filters)
	if err != nil {
		slog.Error("Signal export query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		writeSignalsCSV(c, signals)
	case "json":
		if signals == nil {
			signals = []*models.Signal{}
		}
		c.JSON(http.StatusOK, signals)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
	}
}

func writeSignalsCSV(c *gin.Context, signals []*models.Signal) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="signals.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "created_at", "source", "summary", "analysis",
		"sentiment", "relevance_score", "urgent", "tickers", "tags"})
	for _, sig := range signals {
		_ = w.Write([]string{
			sig.ID,
			sig.CreatedAt.Format(time.RFC3339),
			sig.SourceName,
			sig.Summary,
			sig.Analysis,
			string(sig.Sentiment),
			strconv.Itoa(sig.RelevanceScore),
			strconv.FormatBool(sig.Urgent),
			strings.Join(sig.Tickers, " "),
			strings.Join(sig.Tags, " "),
		})
	}
	w.Flush()
}

// SignalSources serves the distinct source names signals were derived from.
func (s *Server) SignalSources(c *gin.Context) {
	sources, err := s.store.DistinctSignalSources(c.Request.Context())
	if err != nil {
		slog.Error("Signal sources query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if sources == nil {
		sources = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// Stats serves the O(1) pipeline counters.
func (s *Server) Stats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		slog.Error("Stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseSignalFilters(c *gin.Context) (models.SignalFilters, error) {
	filters := models.SignalFilters{
		Source:    c.Query("source"),
		Sentiment: c.Query("sentiment"),
		Query:     c.Query("q"),
		Limit:     defaultListLimit,
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filters, errBadParam("limit")
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		filters.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filters, errBadParam("offset")
		}
		filters.Offset = n
	}
	if raw := c.Query("urgent"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, errBadParam("urgent")
		}
		filters.Urgent = &v
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, errBadParam("from")
		}
		filters.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, errBadParam("to")
		}
		filters.To = &t
	}
	return filters, nil
}

func isFirstPageUnfiltered(f models.SignalFilters) bool {
	return f.Source == "" && f.Sentiment == "" && f.Query == "" &&
		f.Urgent == nil && f.From == nil && f.To == nil &&
		f.Offset == 0 && f.Limit == defaultListLimit
}

type paramError string

func (e paramError) Error() string { return "invalid query parameter: " + string(e) }

func errBadParam(name string) error { return paramError(name) }
