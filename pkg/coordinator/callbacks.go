package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/moecapital/refinery/pkg/llm"
	"github.com/moecapital/refinery/pkg/store"
)

const callbackPrefix = "CALLBACK:"

// dispatchCallback serves a deep-dive button press of the form
// "CALLBACK:<kind>:<item_id>". Reads and LLM I/O only, so it runs off the
// writer loop; the user sees a holding message, then the result or a
// human-readable failure.
func (c *Coordinator) dispatchCallback(ctx context.Context, chatID, text string) string {
	parts := strings.SplitN(strings.TrimPrefix(text, callbackPrefix), ":", 2)
	if len(parts) != 2 {
		return "malformed callback"
	}
	kind := llm.CallbackKind(parts[0])
	itemID := parts[1]

	prompt, ok := llm.CallbackPrompt(kind)
	if !ok {
		return "unknown callback kind"
	}

	item, err := c.store.GetContentItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		reply := "signal not found or expired"
		c.reply(ctx, chatID, reply)
		return reply
	}
	if err != nil {
		c.logger.Error("Callback item lookup failed", "item_id", itemID, "error", err)
		reply := "lookup failed, try again later"
		c.reply(ctx, chatID, reply)
		return reply
	}

	c.reply(ctx, chatID, "working on it...")

	answer, err := c.llm.Generate(ctx, item.RawText, prompt)
	if err != nil {
		c.logger.Warn("Callback generation failed",
			"item_id", itemID, "kind", string(kind), "error", err)
		reply := "analysis failed, try again later"
		c.reply(ctx, chatID, reply)
		return reply
	}

	c.reply(ctx, chatID, answer)
	return answer
}
