// Package heartbeat drives periodic pipeline work with an activity-adaptive
// interval: active systems tick at the base cadence, idle systems back off
// exponentially, and any ingest preempts the backoff.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/moecapital/refinery/pkg/store"
)

// Default interval bounds.
const (
	DefaultBase = 5 * time.Minute
	DefaultMin  = 5 * time.Second
	DefaultMax  = 60 * time.Minute
)

// Intervals bounds the adaptive schedule. Zero fields take the defaults.
type Intervals struct {
	Base time.Duration
	Min  time.Duration
	Max  time.Duration
}

func (iv Intervals) withDefaults() Intervals {
	if iv.Base <= 0 {
		iv.Base = DefaultBase
	}
	if iv.Min <= 0 {
		iv.Min = DefaultMin
	}
	if iv.Max <= 0 {
		iv.Max = DefaultMax
	}
	return iv
}

// TickFunc performs one unit of scheduled work and reports whether anything
// happened. Activity resets the interval to Base; idleness doubles it.
type TickFunc func(ctx context.Context) (active bool)

// Scheduler owns the tick loop and the durable next-interval state. The
// interval survives restarts through the settings table.
type Scheduler struct {
	store  *store.Store
	tick   TickFunc
	iv     Intervals
	logger *slog.Logger

	preemptCh chan struct{}
	soonCh    chan struct{}
}

// New creates a scheduler around the given tick function.
func New(st *store.Store, tick TickFunc, iv Intervals) *Scheduler {
	return &Scheduler{
		store:     st,
		tick:      tick,
		iv:        iv.withDefaults(),
		logger:    slog.Default().With("component", "heartbeat"),
		preemptCh: make(chan struct{}, 1),
		soonCh:    make(chan struct{}, 1),
	}
}

// Preempt resets the backoff to Base and pulls the next tick forward to
// within Min. Safe to call from any goroutine; coalesces concurrent calls.
func (s *Scheduler) Preempt() {
	select {
	case s.preemptCh <- struct{}{}:
	default:
	}
}

// ScheduleSoon pulls the next tick forward without touching the stored
// interval. Used when a pass leaves a backlog behind.
func (s *Scheduler) ScheduleSoon() {
	select {
	case s.soonCh <- struct{}{}:
	default:
	}
}

// Run executes the tick loop until the context is cancelled. The first tick
// fires after the persisted interval (Base on a fresh database).
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.loadInterval(ctx)
	s.logger.Info("Heartbeat started", "interval", interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Heartbeat stopped")
			return

		case <-s.preemptCh:
			interval = s.iv.Base
			s.persistInterval(ctx, interval)
			resetTimer(timer, s.iv.Min)
			s.logger.Debug("Heartbeat preempted", "next_tick_in", s.iv.Min)

		case <-s.soonCh:
			resetTimer(timer, 2*time.Second)

		case <-timer.C:
			active := s.tick(ctx)
			interval = nextInterval(interval, active, s.iv)
			s.persistInterval(ctx, interval)
			resetTimer(timer, interval)
			s.logger.Debug("Heartbeat tick complete", "active", active, "next_interval", interval)
		}
	}
}

func (s *Scheduler) loadInterval(ctx context.Context) time.Duration {
	var ms int64
	err := s.store.GetSetting(ctx, store.SettingHeartbeatInterval, &ms)
	if err != nil || ms < s.iv.Min.Milliseconds() || ms > s.iv.Max.Milliseconds() {
		return s.iv.Base
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Scheduler) persistInterval(ctx context.Context, interval time.Duration) {
	if err := s.store.PutSetting(ctx, store.SettingHeartbeatInterval, interval.Milliseconds()); err != nil {
		s.logger.Warn("Failed to persist heartbeat interval", "error", err)
	}
}

// resetTimer drains a possibly-fired timer before resetting it.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// nextInterval applies the adaptive schedule: activity snaps back to the
// base, idleness doubles the interval up to the max.
func nextInterval(current time.Duration, active bool, iv Intervals) time.Duration {
	if active {
		return iv.Base
	}
	if next := current * 2; next < iv.Max {
		return next
	}
	return iv.Max
}
