package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"adforge/internal/bootstrap"
	"adforge/internal/http/handlers"
	httpapi "adforge/internal/http/httpapi"
	"adforge/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: bootstrap failed")
	}

	// Jobs run on a context that outlives the request that started them and
	// is cancelled only on shutdown.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	if cfg.QueueBackend == infra.QueueNATS {
		if err := rt.UseNATS(); err != nil {
			logger.Fatal().Err(err).Msg("api: nats dispatcher")
		}
	} else {
		rt.UseLocalPool(jobCtx)
	}

	app := handlers.NewApp(rt.Orchestrator, rt.Files, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         rt.Metrics.Handler(),
		FilesDir:        rt.Files.BasePath(),
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("backends", rt.Describe()).Msg("api listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	rt.Close(shutdownCtx)
	cancelJobs()
	logger.Info().Msg("server stopped")
}
