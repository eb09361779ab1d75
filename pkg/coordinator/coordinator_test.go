package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moecapital/refinery/pkg/chat"
	"github.com/moecapital/refinery/pkg/ingest"
	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/scrub"
)

// recordingSender captures replies sent back to chats.
type recordingSender struct {
	mu   sync.Mutex
	sent []chat.Message
}

func (r *recordingSender) Send(ctx context.Context, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.sent...)
}

// newRunningCoordinator starts a writer loop torn down with the test. The
// store is nil: only store-free paths may be exercised.
func newRunningCoordinator(t *testing.T, deps Deps) *Coordinator {
	t.Helper()
	c := New(deps)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
			t.Fatal("writer loop did not stop")
		}
	})
	return c
}

func TestDispatchCommandHelp(t *testing.T) {
	sender := &recordingSender{}
	c := newRunningCoordinator(t, Deps{Sender: sender})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "/help",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "/status")
	assert.Contains(t, resp.Reply, "/add <name> <url>")
	assert.Nil(t, resp.Ingest)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chat-1", msgs[0].ChatID)
	assert.Equal(t, resp.Reply, msgs[0].Text)
}

func TestDispatchCommandUnknown(t *testing.T) {
	c := newRunningCoordinator(t, Deps{})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "/frobnicate now",
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown command", resp.Reply)
}

func TestDispatchCommandCaseInsensitive(t *testing.T) {
	c := newRunningCoordinator(t, Deps{})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "/HELP",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "Commands:")
}

func TestDispatchCommandUsage(t *testing.T) {
	c := newRunningCoordinator(t, Deps{})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "/add onlyname",
	})
	require.NoError(t, err)
	assert.Equal(t, "usage: /add <name> <url>", resp.Reply)

	resp, err = c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "/ignore",
	})
	require.NoError(t, err)
	assert.Equal(t, "usage: /ignore <id>", resp.Reply)
}

func TestDispatchCallbackMalformed(t *testing.T) {
	c := newRunningCoordinator(t, Deps{})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "CALLBACK:justakind",
	})
	require.NoError(t, err)
	assert.Equal(t, "malformed callback", resp.Reply)
}

func TestDispatchCallbackUnknownKind(t *testing.T) {
	c := newRunningCoordinator(t, Deps{})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "CALLBACK:xyz:item-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown callback kind", resp.Reply)
}

func TestHandleInboundRoutesPlainTextToIngest(t *testing.T) {
	// A vetoing scrubber keeps the pipeline store-free: the record is dropped
	// before any persistence, which is enough to prove the routing.
	scrubber := scrub.New(scrub.WithVeto(func(string) bool { return true }))
	pipeline := ingest.New(nil, scrubber, ingest.Options{})
	c := newRunningCoordinator(t, Deps{Pipeline: pipeline})

	resp, err := c.HandleInbound(context.Background(), models.IngestRecord{
		ChatID: "chat-1", Text: "plain market chatter",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Reply)
	require.NotNil(t, resp.Ingest)
	assert.Equal(t, ingest.OutcomeDropped, resp.Ingest.Outcome)
}

func TestSubmitAfterShutdown(t *testing.T) {
	scrubber := scrub.New(scrub.WithVeto(func(string) bool { return true }))
	pipeline := ingest.New(nil, scrubber, ingest.Options{})
	c := New(Deps{Pipeline: pipeline})

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.done

	_, err := c.Ingest(context.Background(), models.IngestRecord{ChatID: "c", Text: "t"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}
