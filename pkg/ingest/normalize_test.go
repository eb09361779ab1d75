package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIngestPayload(t *testing.T) {
	t.Run("snake_case", func(t *testing.T) {
		rec, err := NormalizeIngestPayload([]byte(
			`{"chat_id": "src-1", "message_id": "m1", "title": "Desk", "text": "hello", "created_at": 1748800000}`))
		require.NoError(t, err)
		assert.Equal(t, "src-1", rec.ChatID)
		assert.Equal(t, "m1", rec.MessageID)
		assert.Equal(t, "Desk", rec.Title)
		assert.Equal(t, "hello", rec.Text)
		require.NotNil(t, rec.CreatedAt)
		assert.Equal(t, int64(1748800000), rec.CreatedAt.Unix())
	})

	t.Run("camelCase tolerated", func(t *testing.T) {
		rec, err := NormalizeIngestPayload([]byte(
			`{"chatId": "src-2", "messageId": "m2", "text": "hi"}`))
		require.NoError(t, err)
		assert.Equal(t, "src-2", rec.ChatID)
		assert.Equal(t, "m2", rec.MessageID)
		assert.Nil(t, rec.CreatedAt)
	})

	t.Run("media attachment", func(t *testing.T) {
		rec, err := NormalizeIngestPayload([]byte(
			`{"chat_id": "src-3", "text": "report attached", "media": {"file_id": "f1", "mime_type": "application/pdf", "file_name": "q2.pdf"}}`))
		require.NoError(t, err)
		require.NotNil(t, rec.Media)
		assert.Equal(t, "f1", rec.Media.FileID)
		assert.True(t, rec.Media.IsPDF())
	})

	t.Run("camelCase media tolerated", func(t *testing.T) {
		rec, err := NormalizeIngestPayload([]byte(
			`{"chatId": "src-4", "text": "x", "media": {"fileId": "f2", "mimeType": "image/png", "fileName": "chart.png"}}`))
		require.NoError(t, err)
		require.NotNil(t, rec.Media)
		assert.Equal(t, "f2", rec.Media.FileID)
		assert.Equal(t, "image/png", rec.Media.MimeType)
		assert.Equal(t, "chart.png", rec.Media.FileName)
	})

	t.Run("media without file id ignored", func(t *testing.T) {
		rec, err := NormalizeIngestPayload([]byte(
			`{"chat_id": "src-5", "text": "x", "media": {"mime_type": "application/pdf"}}`))
		require.NoError(t, err)
		assert.Nil(t, rec.Media)
	})

	t.Run("missing chat id rejected", func(t *testing.T) {
		_, err := NormalizeIngestPayload([]byte(`{"text": "orphan"}`))
		assert.ErrorContains(t, err, "chat_id")
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		_, err := NormalizeIngestPayload([]byte(`{broken`))
		assert.Error(t, err)
	})
}

func TestNormalizeChatUpdate(t *testing.T) {
	t.Run("message with text", func(t *testing.T) {
		rec, err := NormalizeChatUpdate([]byte(`{
			"message": {
				"message_id": 42,
				"date": 1748800000,
				"text": "market update",
				"chat": {"id": -100555, "title": "Trading Floor"}
			}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "-100555", rec.ChatID)
		assert.Equal(t, "42", rec.MessageID)
		assert.Equal(t, "Trading Floor", rec.Title)
		assert.Equal(t, "market update", rec.Text)
		require.NotNil(t, rec.CreatedAt)
	})

	t.Run("channel post", func(t *testing.T) {
		rec, err := NormalizeChatUpdate([]byte(`{
			"channel_post": {
				"message_id": 7,
				"text": "broadcast",
				"chat": {"id": 1, "title": "Channel"}
			}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "broadcast", rec.Text)
	})

	t.Run("caption used when text empty", func(t *testing.T) {
		rec, err := NormalizeChatUpdate([]byte(`{
			"message": {
				"message_id": 9,
				"caption": "chart attached",
				"chat": {"id": 1},
				"photo": [{"file_id": "small"}, {"file_id": "large"}]
			}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "chart attached", rec.Text)
		require.NotNil(t, rec.Media)
		assert.Equal(t, "large", rec.Media.FileID, "largest photo rendition is last")
	})

	t.Run("document media", func(t *testing.T) {
		rec, err := NormalizeChatUpdate([]byte(`{
			"message": {
				"message_id": 10,
				"chat": {"id": 1},
				"document": {"file_id": "doc-1", "mime_type": "application/pdf", "file_name": "q2.pdf"}
			}
		}`))
		require.NoError(t, err)
		require.NotNil(t, rec.Media)
		assert.True(t, rec.Media.IsPDF())
	})

	t.Run("no message kinds", func(t *testing.T) {
		for _, body := range []string{
			`{}`,
			`{"edited_message": {"message_id": 1}}`,
			`{"message": {"message_id": 2, "chat": {"id": 1}}}`,
		} {
			_, err := NormalizeChatUpdate([]byte(body))
			assert.ErrorIs(t, err, ErrNoMessage, "body %s", body)
		}
	})
}

func TestNormalizeGenericWebhook(t *testing.T) {
	t.Run("aliases for source and text", func(t *testing.T) {
		rec, err := NormalizeGenericWebhook([]byte(`{"chatId": "ext", "content": "payload"}`))
		require.NoError(t, err)
		assert.Equal(t, "ext", rec.ChatID)
		assert.Equal(t, "payload", rec.Text)
	})

	t.Run("source field preferred", func(t *testing.T) {
		rec, err := NormalizeGenericWebhook([]byte(`{"source": "vendor", "chat_id": "other", "message": "m"}`))
		require.NoError(t, err)
		assert.Equal(t, "vendor", rec.ChatID)
	})

	t.Run("default source", func(t *testing.T) {
		rec, err := NormalizeGenericWebhook([]byte(`{"text": "anonymous"}`))
		require.NoError(t, err)
		assert.Equal(t, "webhook", rec.ChatID)
	})

	t.Run("no text", func(t *testing.T) {
		_, err := NormalizeGenericWebhook([]byte(`{"source": "vendor"}`))
		assert.ErrorIs(t, err, ErrNoMessage)
	})
}

func TestNormalizeDiscordWebhook(t *testing.T) {
	rec, err := NormalizeDiscordWebhook([]byte(`{
		"id": "msg-1",
		"channel_id": "chan-9",
		"content": "ape in",
		"author": {"username": "trader"},
		"timestamp": "2025-06-02T10:00:00Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "discord:chan-9", rec.ChatID)
	assert.Equal(t, "msg-1", rec.MessageID)
	assert.Equal(t, "trader", rec.Title)
	assert.Equal(t, "ape in", rec.Text)
	require.NotNil(t, rec.CreatedAt)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), rec.CreatedAt.UTC())

	_, err = NormalizeDiscordWebhook([]byte(`{"channel_id": "chan-9"}`))
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestSlackChallenge(t *testing.T) {
	assert.Equal(t, "tok-123",
		SlackChallenge([]byte(`{"type": "url_verification", "challenge": "tok-123"}`)))
	assert.Empty(t, SlackChallenge([]byte(`{"type": "event_callback"}`)))
	assert.Empty(t, SlackChallenge([]byte(`not json`)))
}

func TestNormalizeSlackWebhook(t *testing.T) {
	rec, err := NormalizeSlackWebhook([]byte(`{
		"event": {"type": "message", "channel": "C123", "user": "U9", "text": "heads up", "ts": "1748800000.000200"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "slack:C123", rec.ChatID)
	assert.Equal(t, "1748800000.000200", rec.MessageID)
	assert.Equal(t, "heads up", rec.Text)
	require.NotNil(t, rec.CreatedAt)
	assert.Equal(t, int64(1748800000), rec.CreatedAt.Unix())

	_, err = NormalizeSlackWebhook([]byte(`{"event": {"type": "reaction_added"}}`))
	assert.ErrorIs(t, err, ErrNoMessage)
}
