package coordinator

import (
	"context"
	"time"

	"github.com/moecapital/refinery/pkg/store"
)

// Tick is the heartbeat's tick function: feed polling, one analyzer pass,
// digest synthesis and janitor work when due. Runs on the writer so it
// serializes with inbound ingests. Returns whether anything happened.
func (c *Coordinator) Tick(ctx context.Context) bool {
	var active bool
	err := c.submit(ctx, func(runCtx context.Context) {
		active = c.runTick(runCtx)
	})
	if err != nil {
		c.logger.Warn("Heartbeat tick not executed", "error", err)
		return false
	}
	return active
}

func (c *Coordinator) runTick(ctx context.Context) bool {
	polled := 0
	if c.poller != nil {
		n, err := c.poller.PollDue(ctx)
		if err != nil {
			c.logger.Warn("Feed poll sweep failed", "error", err)
		}
		polled = n
	}

	out, err := c.analyzer.RunOnce(ctx)
	if err != nil {
		c.logger.Error("Analyzer pass failed", "error", err)
		c.store.LogState(ctx, "coordinator", "analyzer pass failed",
			map[string]any{"error": err.Error()})
	}
	if out.Backlog && c.scheduler != nil {
		c.scheduler.ScheduleSoon()
	}

	digested := 0
	if c.cadenceDue(ctx, store.SettingDigestLastRun, c.digestCadence) {
		n, err := c.analyzer.RunDigest(ctx)
		if err != nil {
			c.logger.Warn("Digest synthesis failed", "error", err)
		} else {
			digested = n
		}
		c.markCadenceRun(ctx, store.SettingDigestLastRun)
	}

	if c.cadenceDue(ctx, store.SettingJanitorLastRun, c.janitorCadence) {
		c.runJanitor(ctx)
		c.markCadenceRun(ctx, store.SettingJanitorLastRun)
	}

	return polled > 0 || out.Promoted > 0 || digested > 0
}

// runJanitor prunes internal logs past retention.
func (c *Coordinator) runJanitor(ctx context.Context) {
	cutoff := time.Now().Add(-c.logRetention)
	pruned, err := c.store.PruneInternalLogsOlderThan(ctx, cutoff)
	if err != nil {
		c.logger.Warn("Log pruning failed", "error", err)
		return
	}
	if pruned > 0 {
		c.logger.Info("Pruned internal logs", "rows", pruned)
	}
}

// cadenceDue reports whether the periodic task keyed by settingKey has not
// run within the cadence. A missing or unreadable setting counts as due.
func (c *Coordinator) cadenceDue(ctx context.Context, settingKey string, cadence time.Duration) bool {
	var lastMs int64
	if err := c.store.GetSetting(ctx, settingKey, &lastMs); err != nil {
		return true
	}
	last := time.UnixMilli(lastMs)
	return time.Since(last) >= cadence
}

func (c *Coordinator) markCadenceRun(ctx context.Context, settingKey string) {
	if err := c.store.PutSetting(ctx, settingKey, time.Now().UnixMilli()); err != nil {
		c.logger.Warn("Failed to persist cadence timestamp", "key", settingKey, "error", err)
	}
}
