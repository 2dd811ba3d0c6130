package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"adforge/internal/bootstrap"
	"adforge/internal/infra"
	"adforge/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("role", "worker").Logger()

	if cfg.QueueBackend != infra.QueueNATS {
		logger.Fatal().Msg("worker: QUEUE_BACKEND must be nats, the api runs jobs in-process otherwise")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: bootstrap failed")
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	pool := rt.UseLocalPool(jobCtx)

	consumer := queue.NewConsumer(rt.NATS, cfg.NATSTaskSubject, cfg.NATSQueueGroup, pool, logger)
	if err := consumer.Start(jobCtx); err != nil {
		logger.Fatal().Err(err).Msg("worker: subscribe failed")
	}

	// Workers expose only health and metrics.
	r := chi.NewRouter()
	r.Get("/v1/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", rt.Metrics.Handler())
	server := infra.NewHTTPServer(cfg, r)
	go func() {
		logger.Info().Str("addr", server.Addr()).Str("backends", rt.Describe()).Msg("worker started")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("worker: shutting down")

	if err := consumer.Stop(); err != nil {
		logger.Warn().Err(err).Msg("worker: unsubscribe")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	rt.Close(shutdownCtx)
	logger.Info().Msg("worker stopped")
}
