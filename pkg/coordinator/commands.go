package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/moecapital/refinery/pkg/chat"
	"github.com/moecapital/refinery/pkg/models"
)

const helpText = `Commands:
/status - pipeline counters
/add <name> <url> - register a feed channel
/ignore <id> - stop collecting from a channel
/help - this listing`

// dispatchCommand executes a "/" command and returns the reply text. The
// reply is also sent back to the originating chat when one is known.
// Commands never reach the ingest pipeline.
func (c *Coordinator) dispatchCommand(ctx context.Context, chatID, text string) string {
	fields := strings.Fields(text)
	verb := strings.ToLower(fields[0])

	var reply string
	switch verb {
	case "/status":
		reply = c.cmdStatus(ctx)
	case "/add":
		reply = c.cmdAdd(ctx, fields[1:])
	case "/ignore":
		reply = c.cmdIgnore(ctx, fields[1:])
	case "/help":
		reply = helpText
	default:
		reply = "unknown command"
	}

	c.reply(ctx, chatID, reply)
	return reply
}

func (c *Coordinator) cmdStatus(ctx context.Context) string {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		c.logger.Error("Stats query failed", "error", err)
		return "status unavailable"
	}
	return fmt.Sprintf("items=%d signals=%d channels=%d",
		stats.Items, stats.Signals, stats.Channels)
}

func (c *Coordinator) cmdAdd(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "usage: /add <name> <url>"
	}
	name, url := args[0], args[1]

	_, inserted, err := c.RegisterFeed(ctx, name, url)
	if err != nil {
		c.logger.Error("Feed registration failed", "name", name, "error", err)
		return "failed to register feed"
	}
	if !inserted {
		return fmt.Sprintf("feed %q already registered, url updated", name)
	}
	return fmt.Sprintf("feed %q registered", name)
}

func (c *Coordinator) cmdIgnore(ctx context.Context, args []string) string {
	if len(args) < 1 {
		return "usage: /ignore <id>"
	}
	id := args[0]

	var err error
	serr := c.submit(ctx, func(runCtx context.Context) {
		err = c.store.SetChannelStatus(runCtx, id, models.ChannelStatusIgnored)
	})
	if serr != nil || err != nil {
		return fmt.Sprintf("channel %s not found", id)
	}
	return fmt.Sprintf("channel %s ignored", id)
}

// reply sends command and callback responses back to the originating chat.
// Best-effort: replies are a courtesy, the HTTP acknowledgment carries the
// same text.
func (c *Coordinator) reply(ctx context.Context, chatID, text string) {
	if c.sender == nil || chatID == "" || text == "" {
		return
	}
	if err := c.sender.Send(ctx, chat.Message{ChatID: chatID, Text: text}); err != nil {
		c.logger.Warn("Failed to send reply", "chat_id", chatID, "error", err)
	}
}
