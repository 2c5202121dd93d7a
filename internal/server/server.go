// Package server exposes the drafting assistant over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/assistant"
	"github.com/finlegal/tenkdraft/internal/audit"
	"github.com/finlegal/tenkdraft/internal/edgar"
	"github.com/finlegal/tenkdraft/internal/filingstore"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/internal/index"
	"github.com/finlegal/tenkdraft/provider"
)

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	cfg       *config.Config
	assistant *assistant.Assistant
	pipeline  *generation.Pipeline
	recorder  audit.Recorder
}

func NewServer(cfg *config.Config, asst *assistant.Assistant, pipeline *generation.Pipeline, recorder audit.Recorder) *Server {
	return &Server{cfg: cfg, assistant: asst, pipeline: pipeline, recorder: recorder}
}

// Router builds the echo instance with middleware and all routes registered.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("")
	if secret := s.cfg.Server.JWTSecret; secret != "" {
		api.Use(authMiddleware([]byte(secret)))
	}
	api.GET("/companies", s.handleCompanies)
	api.POST("/chat/start", s.handleChatStart)
	api.POST("/chat", s.handleChat)
	api.POST("/generate", s.handleGenerate)
	api.GET("/sessions/:id/audit", s.handleSessionAudit)
	api.GET("/sessions/:id/content", s.handleSessionContent)
	api.POST("/sessions/:id/reset", s.handleSessionReset)

	return e
}

// Run wires the full service from config and serves until the listener stops.
func Run(cfg *config.Config, addr string) error {
	prov, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	filings, err := filingstore.New(cfg.Storage.FilingsDir())
	if err != nil {
		return err
	}
	ix, err := index.New(prov)
	if err != nil {
		return err
	}
	if err := BuildIndex(context.Background(), ix, filings); err != nil {
		return err
	}

	var recorder audit.Recorder
	if cfg.Storage.Postgres.Enabled() {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		if err := audit.Migrate("file://migrations", dsn, "up", 0); err != nil {
			log.Printf("[SERVE] audit migrations: %v", err)
		}
		pg, err := audit.NewPGStore(dsn)
		if err != nil {
			return err
		}
		defer pg.Close()
		recorder = pg
	} else {
		fs, err := audit.NewFileStore(cfg.Storage.AuditDir())
		if err != nil {
			return err
		}
		recorder = fs
	}

	pipeline := generation.NewPipeline(prov, ix, recorder, cfg.LLM, cfg.Retrieval.TopK)

	var sessions assistant.Store
	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled() {
		rs := assistant.NewRedisStore(cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, 0)
		if err := rs.Client().Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		rdb = rs.Client()
		sessions = rs
	} else {
		sessions = assistant.NewMemoryStore(0)
	}

	asst := assistant.New(prov, pipeline, sessions, recorder, cfg.Companies, cfg.LLM)
	srv := NewServer(cfg, asst, pipeline, recorder)
	e := srv.Router()

	if cfg.Server.RefreshCron != "" {
		refresher, err := NewRefresher(cfg, edgar.NewClient(cfg.EDGAR), filings, ix, rdb)
		if err != nil {
			return err
		}
		refresher.Start()
		defer refresher.Stop()
	}

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("[SERVE] listening on %s", addr)
	return e.Start(addr)
}

// BuildIndex loads every cached filing into the retrieval index.
func BuildIndex(ctx context.Context, ix *index.Index, filings *filingstore.Store) error {
	tickers, err := filings.List()
	if err != nil {
		return err
	}
	for _, ticker := range tickers {
		f, err := filings.Load(ticker)
		if err != nil {
			return err
		}
		if err := ix.AddFiling(ctx, f); err != nil {
			return fmt.Errorf("indexing %s: %w", ticker, err)
		}
	}
	log.Printf("[INDEX] indexed %d filings, %d chunks", len(tickers), ix.Size())
	return nil
}
