// Package coordinator is the singleton entry point of the pipeline: it owns
// the store handle, serializes every state mutation through a single writer
// loop, routes inbound text to commands, callbacks, or ingest, and runs the
// heartbeat tick work.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/moecapital/refinery/pkg/analyzer"
	"github.com/moecapital/refinery/pkg/chat"
	"github.com/moecapital/refinery/pkg/events"
	"github.com/moecapital/refinery/pkg/feeds"
	"github.com/moecapital/refinery/pkg/ingest"
	"github.com/moecapital/refinery/pkg/llm"
	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/store"
)

// Default cadences for the scheduled maintenance work.
const (
	DefaultDigestCadence  = 12 * time.Hour
	DefaultJanitorCadence = 12 * time.Hour
	DefaultLogRetention   = 7 * 24 * time.Hour
)

// writerQueueSize bounds the command channel. Pending pipeline work lives in
// the store, so a small queue is enough to absorb request bursts.
const writerQueueSize = 128

// drainGrace bounds how long shutdown waits for queued commands.
const drainGrace = 5 * time.Second

// ErrShuttingDown is returned for writes submitted after shutdown began.
var ErrShuttingDown = errors.New("coordinator shutting down")

// Response is the coordinator's answer to an inbound chat-style update.
type Response struct {
	// Reply is the text sent back to the originating chat for commands and
	// callbacks; empty for plain ingests.
	Reply string
	// Ingest is set when the update was routed to the ingest pipeline.
	Ingest *ingest.Result
}

// Deps wires the coordinator's collaborators.
type Deps struct {
	Store    *store.Store
	Pipeline *ingest.Pipeline
	Analyzer *analyzer.Analyzer
	Poller   *feeds.Poller
	LLM      *llm.Client
	Sender   chat.Sender
	Events   *events.Publisher

	// Maintenance cadences; zero values take the defaults.
	DigestCadence  time.Duration
	JanitorCadence time.Duration
	LogRetention   time.Duration
}

// Coordinator serializes writes through a bounded command queue. Reads
// bypass the queue entirely and hit the store concurrently.
type Coordinator struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	analyzer *analyzer.Analyzer
	poller   *feeds.Poller
	llm      *llm.Client
	sender   chat.Sender
	events   *events.Publisher
	logger   *slog.Logger

	scheduler Scheduler

	digestCadence  time.Duration
	janitorCadence time.Duration
	logRetention   time.Duration

	cmdCh chan func(ctx context.Context)
	done  chan struct{}
}

// Scheduler is the heartbeat surface the coordinator drives when a pass
// leaves pending work behind.
type Scheduler interface {
	ScheduleSoon()
}

// SetScheduler installs the heartbeat hook. Called once during wiring; the
// coordinator and the scheduler reference each other.
func (c *Coordinator) SetScheduler(s Scheduler) {
	c.scheduler = s
}

// New creates a coordinator. Run must be called before any submit.
func New(deps Deps) *Coordinator {
	if deps.DigestCadence <= 0 {
		deps.DigestCadence = DefaultDigestCadence
	}
	if deps.JanitorCadence <= 0 {
		deps.JanitorCadence = DefaultJanitorCadence
	}
	if deps.LogRetention <= 0 {
		deps.LogRetention = DefaultLogRetention
	}
	return &Coordinator{
		store:          deps.Store,
		pipeline:       deps.Pipeline,
		analyzer:       deps.Analyzer,
		poller:         deps.Poller,
		llm:            deps.LLM,
		sender:         deps.Sender,
		events:         deps.Events,
		digestCadence:  deps.DigestCadence,
		janitorCadence: deps.JanitorCadence,
		logRetention:   deps.LogRetention,
		logger:         slog.Default().With("component", "coordinator"),
		cmdCh:          make(chan func(ctx context.Context), writerQueueSize),
		done:           make(chan struct{}),
	}
}

// Run is the single writer loop. It executes queued commands until the
// context is cancelled, then drains what is already queued within a bounded
// grace period.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	c.logger.Info("Writer loop started")

	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.logger.Info("Writer loop stopped")
			return
		case cmd := <-c.cmdCh:
			cmd(ctx)
		}
	}
}

// drain runs already-queued commands under a fresh bounded context so
// in-flight work can finish durably.
func (c *Coordinator) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()
	for {
		select {
		case cmd := <-c.cmdCh:
			cmd(ctx)
			if ctx.Err() != nil {
				return
			}
		default:
			return
		}
	}
}

// submit enqueues a write command and waits for it to run. Returns
// ErrShuttingDown when the writer has exited.
func (c *Coordinator) submit(ctx context.Context, cmd func(ctx context.Context)) error {
	finished := make(chan struct{})
	wrapped := func(runCtx context.Context) {
		defer close(finished)
		cmd(runCtx)
	}

	select {
	case c.cmdCh <- wrapped:
	case <-c.done:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleInbound routes one normalized update. Routing is first-match:
// "/" prefix → command dispatcher, "CALLBACK:" prefix → callback
// dispatcher, everything else → ingest pipeline. Commands and callbacks
// never reach ingest.
func (c *Coordinator) HandleInbound(ctx context.Context, rec models.IngestRecord) (Response, error) {
	text := strings.TrimSpace(rec.Text)
	switch {
	case strings.HasPrefix(text, "/"):
		reply := c.dispatchCommand(ctx, rec.ChatID, text)
		return Response{Reply: reply}, nil
	case strings.HasPrefix(text, callbackPrefix):
		reply := c.dispatchCallback(ctx, rec.ChatID, text)
		return Response{Reply: reply}, nil
	default:
		res, err := c.Ingest(ctx, rec)
		if err != nil {
			return Response{}, err
		}
		return Response{Ingest: &res}, nil
	}
}

// Ingest runs a record through the pipeline on the writer.
func (c *Coordinator) Ingest(ctx context.Context, rec models.IngestRecord) (ingest.Result, error) {
	var (
		res    ingest.Result
		runErr error
	)
	err := c.submit(ctx, func(runCtx context.Context) {
		res, runErr = c.pipeline.Ingest(runCtx, rec)
	})
	if err != nil {
		return ingest.Result{}, err
	}
	if runErr != nil {
		return ingest.Result{}, runErr
	}
	if res.Outcome == ingest.OutcomeStored {
		c.events.ItemIngested(ctx, events.ItemIngestedPayload{
			ItemID:   res.ItemID,
			SourceID: rec.ChatID,
		})
	}
	return res, nil
}

// SignalGeneration exposes the analyzer's signal-write counter for read-side
// cache invalidation.
func (c *Coordinator) SignalGeneration() int64 {
	return c.analyzer.Generation()
}

// Reanalyze forces a fresh analysis pass over specific items on the writer.
// Serves the operator's directed-digest endpoint.
func (c *Coordinator) Reanalyze(ctx context.Context, ids []string) (int, error) {
	var (
		promoted int
		runErr   error
	)
	err := c.submit(ctx, func(runCtx context.Context) {
		promoted, runErr = c.analyzer.Reanalyze(runCtx, ids)
	})
	if err != nil {
		return 0, err
	}
	return promoted, runErr
}

// RegisterFeed registers a feed channel on the writer.
func (c *Coordinator) RegisterFeed(ctx context.Context, name, url string) (string, bool, error) {
	var (
		id       string
		inserted bool
		runErr   error
	)
	err := c.submit(ctx, func(runCtx context.Context) {
		ch := &models.Channel{Name: name, Type: models.ChannelTypeFeed, FeedURL: url}
		id, inserted, runErr = c.store.UpsertChannel(runCtx, ch)
	})
	if err != nil {
		return "", false, err
	}
	return id, inserted, runErr
}

// RemoveFeed deletes a feed channel registration on the writer.
func (c *Coordinator) RemoveFeed(ctx context.Context, id string) error {
	var runErr error
	err := c.submit(ctx, func(runCtx context.Context) {
		runErr = c.store.DeleteChannel(runCtx, id)
	})
	if err != nil {
		return err
	}
	return runErr
}

// MarkKnowledgeSynced flags exported items on the writer.
func (c *Coordinator) MarkKnowledgeSynced(ctx context.Context, ids []string) (int64, error) {
	var (
		n      int64
		runErr error
	)
	err := c.submit(ctx, func(runCtx context.Context) {
		n, runErr = c.store.MarkKnowledgeSynced(runCtx, ids)
	})
	if err != nil {
		return 0, err
	}
	return n, runErr
}
