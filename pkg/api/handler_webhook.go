package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moecapital/refinery/pkg/ingest"
	"github.com/moecapital/refinery/pkg/models"
)

// maxWebhookBody caps inbound payload size.
const maxWebhookBody = 1 << 20

// WebhookChat receives chat platform updates: messages, commands, and
// callback button presses. Errors never propagate to the platform — the
// response is a best-effort acknowledgment so the platform does not retry
// poisoned updates forever.
func (s *Server) WebhookChat(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error")
		return
	}

	rec, err := ingest.NormalizeChatUpdate(body)
	if errors.Is(err, ingest.ErrNoMessage) {
		c.String(http.StatusOK, "OK")
		return
	}
	if err != nil {
		slog.Warn("Malformed chat update", "error", err)
		c.String(http.StatusOK, "OK")
		return
	}

	if _, err := s.coord.HandleInbound(c.Request.Context(), rec); err != nil {
		slog.Error("Inbound handling failed", "chat_id", rec.ChatID, "error", err)
	}
	c.String(http.StatusOK, "OK")
}

// WebhookGeneric receives loosely shaped third-party webhooks.
func (s *Server) WebhookGeneric(c *gin.Context) {
	s.ingestWebhook(c, ingest.NormalizeGenericWebhook)
}

// WebhookDiscord receives Discord message events.
func (s *Server) WebhookDiscord(c *gin.Context) {
	s.ingestWebhook(c, ingest.NormalizeDiscordWebhook)
}

// WebhookSlack receives Slack Events API posts, answering URL-verification
// handshakes with the challenge echo.
func (s *Server) WebhookSlack(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error")
		return
	}

	if challenge := ingest.SlackChallenge(body); challenge != "" {
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	s.ingestBody(c, body, ingest.NormalizeSlackWebhook)
}

// IngestDirect is the trusted direct-ingest endpoint. Unlike the webhooks it
// reports the stored item id.
func (s *Server) IngestDirect(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	rec, err := ingest.NormalizeIngestPayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.coord.Ingest(c.Request.Context(), rec)
	if err != nil {
		slog.Error("Direct ingest failed", "chat_id", rec.ChatID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.ItemID, "outcome": string(res.Outcome)})
}

type normalizeFunc func(body []byte) (models.IngestRecord, error)

func (s *Server) ingestWebhook(c *gin.Context, normalize normalizeFunc) {
	body, err := readBody(c)
	if err != nil {
		c.String(http.StatusInternalServerError, "Error")
		return
	}
	s.ingestBody(c, body, normalize)
}

func (s *Server) ingestBody(c *gin.Context, body []byte, normalize normalizeFunc) {
	rec, err := normalize(body)
	if err != nil {
		if !errors.Is(err, ingest.ErrNoMessage) {
			slog.Warn("Malformed webhook body", "path", c.Request.URL.Path, "error", err)
		}
		c.String(http.StatusOK, "OK")
		return
	}

	if _, err := s.coord.Ingest(c.Request.Context(), rec); err != nil {
		slog.Error("Webhook ingest failed", "path", c.Request.URL.Path, "error", err)
	}
	c.String(http.StatusOK, "OK")
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
}
