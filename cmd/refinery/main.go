// Refinery server — ingests heterogeneous text streams, distills them into
// signals through batched LLM analysis, mirrors the best ones outbound, and
// serves the read API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"flag"

	"github.com/joho/godotenv"

	"github.com/moecapital/refinery/pkg/analyzer"
	"github.com/moecapital/refinery/pkg/api"
	"github.com/moecapital/refinery/pkg/chat"
	"github.com/moecapital/refinery/pkg/config"
	"github.com/moecapital/refinery/pkg/coordinator"
	"github.com/moecapital/refinery/pkg/database"
	"github.com/moecapital/refinery/pkg/events"
	"github.com/moecapital/refinery/pkg/feeds"
	"github.com/moecapital/refinery/pkg/heartbeat"
	"github.com/moecapital/refinery/pkg/ingest"
	"github.com/moecapital/refinery/pkg/llm"
	"github.com/moecapital/refinery/pkg/mirror"
	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/opsnotify"
	"github.com/moecapital/refinery/pkg/scrub"
	"github.com/moecapital/refinery/pkg/store"
	"github.com/moecapital/refinery/pkg/version"
)

// Exit codes: 0 clean, 1 fatal config error, 2 storage init error.
const (
	exitConfig  = 1
	exitStorage = 2
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configFile := flag.String("config",
		getEnv("REFINERY_CONFIG", config.DefaultConfigFile),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting refinery", "version", version.Full(), "config", *configFile)

	// 1. Configuration
	cfg, err := config.Initialize(*configFile)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(exitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 2. Storage
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(exitStorage)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(exitStorage)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.DB())
	publisher := events.NewPublisher(dbClient.DB())

	// 3. Pipeline components
	llmClient := llm.NewClient(llm.Config{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
	})

	var sender chat.Sender
	if cfg.Chat.SendEndpoint != "" {
		sender = chat.NewClient(chat.Config{
			Endpoint: cfg.Chat.SendEndpoint,
			Token:    cfg.Chat.SendToken,
		})
	}

	var mir *mirror.Mirror
	if cfg.MirrorEnabled() {
		mir = mirror.New(mirror.Config{
			PrimaryChatID:      cfg.Mirror.PrimaryChannelID,
			SecondaryChatID:    cfg.Mirror.SecondaryChannelID,
			AdminChatID:        cfg.Mirror.AdminChannelID,
			PrimaryThreshold:   cfg.Analyzer.RelevancePrimaryThreshold,
			SecondaryThreshold: cfg.Analyzer.RelevanceSecondaryThreshold,
		}, sender)
	}

	var ops *opsnotify.Service
	if cfg.Slack.Enabled {
		ops = opsnotify.NewService(opsnotify.ServiceConfig{
			Token:   cfg.Slack.Token,
			Channel: cfg.Slack.Channel,
		})
	}

	anlz := analyzer.New(st, llmClient, mir, publisher, ops, analyzer.Params{
		BatchMax:          cfg.Analyzer.BatchMax,
		MaxRetries:        cfg.Analyzer.MaxRetries,
		DupSuppressWindow: time.Duration(cfg.Analyzer.SignalDupWindowMS) * time.Millisecond,
	})

	scrubPatterns := make([]scrub.Pattern, 0, len(cfg.Scrub.ExtraPatterns))
	for _, p := range cfg.Scrub.ExtraPatterns {
		scrubPatterns = append(scrubPatterns, scrub.Pattern{
			Name:        p.Name,
			Pattern:     p.Pattern,
			Replacement: p.Replacement,
		})
	}
	scrubber := scrub.New(scrub.WithExtraPatterns(scrubPatterns))

	pipeline := ingest.New(st, scrubber, ingest.Options{
		OutboundLabels: cfg.Mirror.OutboundLabels,
		Promoter:       anlz,
		ReuseWindow:    time.Duration(cfg.Analyzer.AnalysisReuseWindowMS) * time.Millisecond,
	})

	poller := feeds.NewPoller(st, feeds.SinkFunc(
		func(ctx context.Context, rec models.IngestRecord) (bool, error) {
			res, err := pipeline.Ingest(ctx, rec)
			if err != nil {
				return false, err
			}
			return res.Outcome == ingest.OutcomeStored, nil
		}), ops)

	coord := coordinator.New(coordinator.Deps{
		Store:          st,
		Pipeline:       pipeline,
		Analyzer:       anlz,
		Poller:         poller,
		LLM:            llmClient,
		Sender:         sender,
		Events:         publisher,
		DigestCadence:  time.Duration(cfg.Analyzer.DigestCadenceMS) * time.Millisecond,
		JanitorCadence: time.Duration(cfg.Retention.JanitorCadenceMS) * time.Millisecond,
		LogRetention:   time.Duration(cfg.Retention.LogRetentionMS) * time.Millisecond,
	})

	hb := heartbeat.New(st, func(ctx context.Context) bool {
		return coord.Tick(ctx)
	}, heartbeat.Intervals{
		Base: time.Duration(cfg.Heartbeat.BaseMS) * time.Millisecond,
		Min:  time.Duration(cfg.Heartbeat.MinMS) * time.Millisecond,
		Max:  time.Duration(cfg.Heartbeat.MaxMS) * time.Millisecond,
	})
	pipeline.SetTickler(hb)
	coord.SetScheduler(hb)

	// 4. Seed configured feed channels
	for _, seed := range cfg.Feeds {
		ch := &models.Channel{Name: seed.Name, Type: models.ChannelTypeFeed, FeedURL: seed.URL}
		if _, _, err := st.UpsertChannel(ctx, ch); err != nil {
			slog.Error("Failed to seed feed channel", "name", seed.Name, "error", err)
		}
	}

	// 5. Background loops
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		coord.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		hb.Run(ctx)
	}()

	// 6. HTTP server
	server := api.NewServer(dbClient, st, coord, api.Config{
		ListenAddr:          cfg.Server.ListenAddr,
		ReadRateLimitPerMin: cfg.Server.ReadRateLimitPerMin,
		SignalsCacheTTL:     time.Duration(cfg.Server.SignalsCacheTTLMS) * time.Millisecond,
	})
	httpServer := server.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("Refinery started successfully")

	// 7. Wait for shutdown signal or server failure
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		stop()
	}

	// 8. Graceful shutdown: stop accepting HTTP, then drain the writer
	httpShutdownCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	wg.Wait()
	slog.Info("Shutdown complete")
}
