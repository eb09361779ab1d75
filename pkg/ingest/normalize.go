package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/moecapital/refinery/pkg/models"
)

// ErrNoMessage is returned for structurally valid webhook bodies that carry
// nothing ingestible (service pings, edits, reactions).
var ErrNoMessage = fmt.Errorf("webhook update carries no message")

// NormalizeIngestPayload parses the direct /ingest body. Accepts both
// snake_case and camelCase field names so existing producers keep working.
func NormalizeIngestPayload(body []byte) (models.IngestRecord, error) {
	var p struct {
		ChatID        string `json:"chat_id"`
		ChatIDCamel   string `json:"chatId"`
		MessageID     string `json:"message_id"`
		MessageIDCam  string `json:"messageId"`
		Title         string `json:"title"`
		Text          string `json:"text"`
		CreatedAtUnix int64  `json:"created_at"`
		Media         *struct {
			FileID      string `json:"file_id"`
			FileIDCamel string `json:"fileId"`
			MimeType    string `json:"mime_type"`
			MimeCamel   string `json:"mimeType"`
			FileName    string `json:"file_name"`
			NameCamel   string `json:"fileName"`
		} `json:"media"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return models.IngestRecord{}, fmt.Errorf("parse ingest payload: %w", err)
	}

	rec := models.IngestRecord{
		ChatID:    firstNonEmpty(p.ChatID, p.ChatIDCamel),
		MessageID: firstNonEmpty(p.MessageID, p.MessageIDCam),
		Title:     p.Title,
		Text:      p.Text,
	}
	if rec.ChatID == "" {
		return models.IngestRecord{}, fmt.Errorf("ingest payload missing chat_id")
	}
	if p.CreatedAtUnix > 0 {
		t := time.Unix(p.CreatedAtUnix, 0).UTC()
		rec.CreatedAt = &t
	}
	if p.Media != nil {
		if fileID := firstNonEmpty(p.Media.FileID, p.Media.FileIDCamel); fileID != "" {
			rec.Media = &models.MediaRef{
				FileID:   fileID,
				MimeType: firstNonEmpty(p.Media.MimeType, p.Media.MimeCamel),
				FileName: firstNonEmpty(p.Media.FileName, p.Media.NameCamel),
			}
		}
	}
	return rec, nil
}

// chatUpdate mirrors the chat platform's webhook update shape. Only the
// fields the pipeline consumes are declared.
type chatUpdate struct {
	Message     *chatMessage `json:"message"`
	ChannelPost *chatMessage `json:"channel_post"`
}

type chatMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Chat      struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"chat"`
	Document *struct {
		FileID   string `json:"file_id"`
		MimeType string `json:"mime_type"`
		FileName string `json:"file_name"`
	} `json:"document"`
	Voice *struct {
		FileID   string `json:"file_id"`
		MimeType string `json:"mime_type"`
	} `json:"voice"`
	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
}

// NormalizeChatUpdate converts a chat platform update into an ingest record.
// Accepts both direct messages and channel posts; other update kinds return
// ErrNoMessage.
func NormalizeChatUpdate(body []byte) (models.IngestRecord, error) {
	var upd chatUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		return models.IngestRecord{}, fmt.Errorf("parse chat update: %w", err)
	}

	msg := upd.Message
	if msg == nil {
		msg = upd.ChannelPost
	}
	if msg == nil {
		return models.IngestRecord{}, ErrNoMessage
	}

	rec := models.IngestRecord{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.FormatInt(msg.MessageID, 10),
		Title:     msg.Chat.Title,
		Text:      firstNonEmpty(msg.Text, msg.Caption),
	}
	if msg.Date > 0 {
		t := time.Unix(msg.Date, 0).UTC()
		rec.CreatedAt = &t
	}
	switch {
	case msg.Document != nil:
		rec.Media = &models.MediaRef{
			FileID:   msg.Document.FileID,
			MimeType: msg.Document.MimeType,
			FileName: msg.Document.FileName,
		}
	case msg.Voice != nil:
		rec.Media = &models.MediaRef{
			FileID:   msg.Voice.FileID,
			MimeType: msg.Voice.MimeType,
		}
	case len(msg.Photo) > 0:
		// Largest rendition is last.
		rec.Media = &models.MediaRef{FileID: msg.Photo[len(msg.Photo)-1].FileID}
	}

	if rec.Text == "" && rec.Media == nil {
		return models.IngestRecord{}, ErrNoMessage
	}
	return rec, nil
}

// NormalizeGenericWebhook handles loosely shaped third-party webhooks: any
// of source/chat_id/chatId names the channel, any of text/content/message
// carries the body.
func NormalizeGenericWebhook(body []byte) (models.IngestRecord, error) {
	var p struct {
		Source      string `json:"source"`
		ChatID      string `json:"chat_id"`
		ChatIDCamel string `json:"chatId"`
		Title       string `json:"title"`
		Text        string `json:"text"`
		Content     string `json:"content"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return models.IngestRecord{}, fmt.Errorf("parse generic webhook: %w", err)
	}

	rec := models.IngestRecord{
		ChatID: firstNonEmpty(p.Source, p.ChatID, p.ChatIDCamel),
		Title:  p.Title,
		Text:   firstNonEmpty(p.Text, p.Content, p.Message),
	}
	if rec.ChatID == "" {
		rec.ChatID = "webhook"
	}
	if rec.Text == "" {
		return models.IngestRecord{}, ErrNoMessage
	}
	return rec, nil
}

// NormalizeDiscordWebhook converts a Discord message event.
func NormalizeDiscordWebhook(body []byte) (models.IngestRecord, error) {
	var p struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		Content   string `json:"content"`
		Author    struct {
			Username string `json:"username"`
		} `json:"author"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return models.IngestRecord{}, fmt.Errorf("parse discord webhook: %w", err)
	}
	if p.Content == "" {
		return models.IngestRecord{}, ErrNoMessage
	}

	rec := models.IngestRecord{
		ChatID:    "discord:" + p.ChannelID,
		MessageID: p.ID,
		Title:     p.Author.Username,
		Text:      p.Content,
	}
	if ts, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
		rec.CreatedAt = &ts
	}
	return rec, nil
}

// SlackChallenge returns the URL-verification challenge token when the body
// is a Slack handshake, or "" for ordinary events.
func SlackChallenge(body []byte) string {
	var p struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	if p.Type == "url_verification" {
		return p.Challenge
	}
	return ""
}

// NormalizeSlackWebhook converts a Slack Events API message event.
func NormalizeSlackWebhook(body []byte) (models.IngestRecord, error) {
	var p struct {
		Event struct {
			Type    string `json:"type"`
			Channel string `json:"channel"`
			User    string `json:"user"`
			Text    string `json:"text"`
			TS      string `json:"ts"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return models.IngestRecord{}, fmt.Errorf("parse slack webhook: %w", err)
	}
	if p.Event.Type != "message" || p.Event.Text == "" {
		return models.IngestRecord{}, ErrNoMessage
	}

	rec := models.IngestRecord{
		ChatID:    "slack:" + p.Event.Channel,
		MessageID: p.Event.TS,
		Title:     p.Event.User,
		Text:      p.Event.Text,
	}
	if secs, err := strconv.ParseFloat(p.Event.TS, 64); err == nil && secs > 0 {
		t := time.Unix(int64(secs), 0).UTC()
		rec.CreatedAt = &t
	}
	return rec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
