// Package api exposes the refinery's HTTP surface: webhook collectors,
// direct ingest, the read API for dashboards, and operator endpoints.
// Writes route through the coordinator; reads hit the store directly.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/moecapital/refinery/pkg/coordinator"
	"github.com/moecapital/refinery/pkg/database"
	"github.com/moecapital/refinery/pkg/models"
	"github.com/moecapital/refinery/pkg/store"
)

// DefaultSignalsCacheTTL bounds staleness of the cached first page of
// signals.
const DefaultSignalsCacheTTL = 30 * time.Second

// Server is the HTTP API server.
type Server struct {
	db    *database.Client
	store *store.Store
	coord *coordinator.Coordinator
	cfg   Config

	// signalsCache holds the unfiltered first page of /signals, keyed by
	// the signal-write generation so any new signal invalidates it.
	signalsCache *expirable.LRU[int64, signalsPage]
}

type signalsPage struct {
	Signals []*models.Signal
	Total   int
}

// Config holds the server settings. A zero cache TTL takes the default.
type Config struct {
	ListenAddr          string
	ReadRateLimitPerMin int
	SignalsCacheTTL     time.Duration
}

// NewServer creates the API server.
func NewServer(db *database.Client, st *store.Store, coord *coordinator.Coordinator, cfg Config) *Server {
	if cfg.SignalsCacheTTL <= 0 {
		cfg.SignalsCacheTTL = DefaultSignalsCacheTTL
	}
	return &Server{
		db:           db,
		store:        st,
		coord:        coord,
		cfg:          cfg,
		signalsCache: expirable.NewLRU[int64, signalsPage](4, nil, cfg.SignalsCacheTTL),
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(securityHeaders())
	router.Use(readRateLimit(newRateLimiter(s.cfg.ReadRateLimitPerMin)))

	router.GET("/", s.Liveness)
	router.GET("/health", s.Health)

	router.POST("/webhook/chat", s.WebhookChat)
	router.POST("/webhook/generic", s.WebhookGeneric)
	router.POST("/webhook/discord", s.WebhookDiscord)
	router.POST("/webhook/slack", s.WebhookSlack)
	router.POST("/ingest", s.IngestDirect)

	router.GET("/signals", s.ListSignals)
	router.GET("/signals/export", s.ExportSignals)
	router.GET("/signals/sources", s.SignalSources)
	router.GET("/stats", s.Stats)

	router.GET("/sources/feed", s.ListFeeds)
	router.POST("/sources/feed", s.AddFeed)
	router.DELETE("/sources/feed/:id", s.DeleteFeed)

	router.POST("/admin/digest", s.AdminDigest)
	router.GET("/knowledge/sync", s.KnowledgeSync)
	router.POST("/knowledge/mark-synced", s.KnowledgeMarkSynced)

	return router
}

// HTTPServer wraps the router in an http.Server the caller owns: it starts
// it with ListenAndServe and stops it with Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
