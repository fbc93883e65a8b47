package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/LimaAnalytica/cleaning-process/internal/api"
	"github.com/LimaAnalytica/cleaning-process/internal/config"
	"github.com/LimaAnalytica/cleaning-process/internal/endpoint"
	"github.com/LimaAnalytica/cleaning-process/internal/metrics"
	"github.com/LimaAnalytica/cleaning-process/internal/selection"
	"github.com/LimaAnalytica/cleaning-process/internal/session"
	"github.com/LimaAnalytica/cleaning-process/internal/ui"
	"github.com/LimaAnalytica/cleaning-process/internal/workflow"
)

func main() {

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	client, err := endpoint.New(endpoint.Options{URL: cfg.EndpointURL, Timeout: cfg.RequestTimeout})
	if err != nil {
		log.Fatal().Err(err).Str("endpoint_url", cfg.EndpointURL).Msg("invalid processing endpoint")
	}

	sessions := buildSessionManager(cfg, client)
	baseCtx, baseCancel := context.WithCancel(context.Background())
	sessions.SetBaseContext(baseCtx)

	router := setupRouter()
	wireRoutes(router, cfg, sessions)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	handler := api.RateLimit(cfg.RateLimitPerMinute, time.Minute)(router)
	srv := newHTTPServer(cfg.Port, handler, readHeaderTimeout)

	log.Info().Int("port", cfg.Port).Str("endpoint_url", client.URL()).Msg("starting dataset processor client")

	g, gctx := errgroup.WithContext(baseCtx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error {
		waitForShutdownSignal(gctx)
		gracefulShutdown(srv, baseCancel, sessions, shutdownTimeout)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server exited cleanly")
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func buildSessionManager(cfg config.Config, client *endpoint.Client) *session.Manager {
	guard := selection.NewGuard(cfg.AcceptedMediaType)
	return session.NewManager(session.Options{
		TTL:   cfg.SessionTTL,
		Gauge: metrics.ActiveSessions,
		Factory: func(ctx context.Context, id string) *workflow.Workflow {
			return workflow.New(workflow.Options{
				ID:           id,
				Guard:        guard,
				Processor:    client,
				DownloadName: cfg.DownloadName,
				Observer:     metrics.Recorder{},
				BaseContext:  ctx,
			})
		},
	})
}

func wireRoutes(router *gin.Engine, cfg config.Config, sessions *session.Manager) {
	api.NewAPI(sessions).RegisterRoutes(router)
	ui.NewUI(sessions, ui.Options{
		AcceptedType: cfg.AcceptedMediaType,
		DownloadName: cfg.DownloadName,
	}).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
	}
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, sessions *session.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !sessions.CloseAll(ctx) {
		log.Warn().Msg("submissions did not unwind before timeout")
	}
}
