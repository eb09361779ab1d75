package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/store"
)

// knowledgeBatchLimit caps one knowledge-sync page.
const knowledgeBatchLimit = 200

// AdminDigest forces a fresh analysis pass over specific items, bypassing
// the heartbeat schedule. Serves operator-driven re-processing (e.g. PDF
// items after their documents were extracted).
func (s *Server) AdminDigest(c *gin.Context) {
	var req struct {
		SourceIDs []string `json:"source_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.SourceIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_ids is required"})
		return
	}

	promoted, err := s.coord.Reanalyze(c.Request.Context(), req.SourceIDs)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching items"})
		return
	}
	if err != nil {
		slog.Error("Directed re-analysis failed", "items", len(req.SourceIDs), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "re-analysis failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": len(req.SourceIDs), "signals": promoted})
}

// knowledgeItem is the export shape for the knowledge-graph side-output:
// the item plus the relationship triples its analysis produced.
type knowledgeItem struct {
	ID         string          `json:"id"`
	SourceName string          `json:"source_name"`
	RawText    string          `json:"raw_text"`
	Analysis   json.RawMessage `json:"analysis,omitempty"`
	Triples    []models.Triple `json:"triples,omitempty"`
}

// KnowledgeSync serves promoted items not yet exported downstream.
func (s *Server) KnowledgeSync(c *gin.Context) {
	limit := knowledgeBatchLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < knowledgeBatchLimit {
			limit = n
		}
	}

	items, err := s.store.UnsyncedAnalyzed(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Knowledge sync query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]knowledgeItem, 0, len(items))
	for _, item := range items {
		out = append(out, knowledgeItem{
			ID:         item.ID,
			SourceName: item.SourceName,
			RawText:    item.RawText,
			Analysis:   json.RawMessage(item.ProcessedJSON),
			Triples:    extractTriples(item.ProcessedJSON),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// KnowledgeMarkSynced flags exported items so the next sync page moves on.
func (s *Server) KnowledgeMarkSynced(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	n, err := s.coord.MarkKnowledgeSynced(c.Request.Context(), req.IDs)
	if err != nil {
		slog.Error("Knowledge mark-synced failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// extractTriples pulls relationship triples out of stored analysis JSON.
// Unparseable payloads yield no triples rather than an error: the export is
// best-effort enrichment.
func extractTriples(processed []byte) []models.Triple {
	if len(processed) == 0 {
		return nil
	}
	var entries []models.AnalysisEntry
	if err := json.Unmarshal(processed, &entries); err != nil {
		return nil
	}
	var triples []models.Triple
	for _, entry := range entries {
		triples = append(triples, entry.Triples...)
	}
	return triples
}
