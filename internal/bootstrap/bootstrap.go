// Package bootstrap wires the pipeline's collaborators from configuration.
// Both the API server and the standalone worker build on it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"adforge/internal/adapter/repo"
	"adforge/internal/bus"
	"adforge/internal/delivery"
	"adforge/internal/domain"
	"adforge/internal/events"
	"adforge/internal/infra"
	"adforge/internal/infra/credentials"
	"adforge/internal/metrics"
	"adforge/internal/pipeline"
	"adforge/internal/providers/genai"
	"adforge/internal/providers/image"
	"adforge/internal/providers/quality"
	"adforge/internal/queue"
	"adforge/internal/storage"
	"adforge/internal/tracing"
)

// Runtime holds everything a process needs to run pipeline jobs.
type Runtime struct {
	Config       *infra.Config
	Logger       infra.Logger
	Jobs         domain.JobStore
	Campaigns    domain.CampaignRepository
	Files        *storage.FileStore
	Metrics      *metrics.Pipeline
	Orchestrator *pipeline.Orchestrator
	NATS         *bus.Client

	db      *pgxpool.Pool
	redis   *redis.Client
	tracing *tracing.Provider
	pool    *queue.Pool
}

// Build connects the configured backends and assembles the orchestrator.
// The orchestrator has no dispatcher yet; see UseLocalPool and UseNATS.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}
	if err := rt.build(ctx); err != nil {
		rt.Close(context.Background())
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.AppEnv,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TracingEnabled,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.tracing = tp

	var runner *infra.SQLRunner
	if cfg.DatabaseURL != "" {
		rt.db, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		runner = infra.NewSQLRunner(rt.db, rt.Logger)
	}

	switch cfg.StoreBackend {
	case infra.StorePostgres:
		rt.Jobs = repo.NewPostgresJobStore(runner)
	case infra.StoreRedis:
		rt.redis, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		rt.Jobs = repo.NewRedisJobStore(rt.redis, cfg.RedisPrefix)
	default:
		rt.Jobs = repo.NewMemoryJobStore()
	}

	if runner != nil {
		rt.Campaigns = repo.NewPostgresCampaignRepository(runner)
	} else {
		var seed []domain.Campaign
		if cfg.CampaignsFile != "" {
			seed, err = repo.LoadCampaignsFile(cfg.CampaignsFile)
			if err != nil {
				return err
			}
		}
		rt.Campaigns = repo.NewMemoryCampaignRepository(seed...)
		rt.Logger.Info().Int("campaigns", len(seed)).Msg("using in-memory campaigns")
	}

	rt.Files, err = storage.NewFileStore(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		return err
	}

	apiKey := cfg.GeminiAPIKey
	if runner != nil {
		apiKey, err = credentials.NewStore(runner).ResolveGeminiAPIKey(ctx, cfg.GeminiAPIKey)
		if err != nil {
			rt.Logger.Warn().Err(err).Msg("could not load stored gemini api key")
			apiKey = cfg.GeminiAPIKey
		}
	}
	providerLogger := rt.Logger.With().Str("component", "genai").Logger()
	client, err := genai.NewClient(genai.Options{
		APIKey:  apiKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &providerLogger,
	})
	if err != nil {
		return err
	}
	if client.Synthetic() {
		rt.Logger.Warn().Msg("no gemini api key configured, rendering synthetic creatives")
	} else {
		rt.Logger.Info().Str("model", client.Model()).Msg("gemini image client ready")
	}

	renderer := image.NewRenderer(client, rt.Files, image.Options{
		MaxTries:    uint(max(cfg.GeneratorRetries, 1)),
		CallTimeout: cfg.GeneratorTimeout,
		Logger:      rt.Logger,
	})
	validator := quality.NewImageValidator(rt.Files, quality.Options{})

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		rt.NATS, err = bus.Connect(cfg.NATSURL, cfg.ServiceName, rt.Logger)
		if err != nil {
			return err
		}
		publisher = events.NewNATSPublisher(rt.NATS, cfg.NATSEventSubject)
	}

	rt.Metrics = metrics.NewPipeline()
	rt.Orchestrator, err = pipeline.New(pipeline.Deps{
		Jobs:      rt.Jobs,
		Campaigns: rt.Campaigns,
		Generator: renderer,
		Validator: validator,
		Packager:  delivery.NewZipPackager(rt.Files),
		Events:    publisher,
		Metrics:   rt.Metrics,
		Logger:    rt.Logger,
	}, pipeline.Config{
		AngleCount:    cfg.PipelineAngles,
		Concurrency:   cfg.PipelineConcurrency,
		FallbackScore: cfg.FallbackScore,
	})
	return err
}

// UseLocalPool runs jobs on an in-process worker pool bound to ctx and makes
// it the orchestrator's dispatcher.
func (rt *Runtime) UseLocalPool(ctx context.Context) *queue.Pool {
	rt.pool = queue.NewPool(rt.Config.WorkerCount, rt.Config.QueueBuffer, rt.Logger)
	rt.pool.Start(ctx, rt.Orchestrator.Run)
	rt.Orchestrator.SetDispatcher(rt.pool)
	return rt.pool
}

// UseNATS publishes jobs to the task subject for separate workers.
func (rt *Runtime) UseNATS() error {
	if rt.NATS == nil {
		return errors.New("nats is not configured")
	}
	rt.Orchestrator.SetDispatcher(queue.NewNATSDispatcher(rt.NATS, rt.Config.NATSTaskSubject))
	return nil
}

// Close drains the worker pool and releases connections.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.NATS != nil {
		rt.NATS.Close()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.Logger.Warn().Err(err).Msg("close redis")
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.tracing.Shutdown(shutdownCtx); err != nil {
		rt.Logger.Warn().Err(err).Msg("tracing shutdown")
	}
}

// Describe summarizes the active backends for the startup log line.
func (rt *Runtime) Describe() string {
	return fmt.Sprintf("store=%s queue=%s storage=%s", rt.Config.StoreBackend, rt.Config.QueueBackend, rt.Files.BasePath())
}
