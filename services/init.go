package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/repository"
	"github.com/asergian/beacon-sub001/services/activity"
	"github.com/asergian/beacon-sub001/services/cache"
	"github.com/asergian/beacon-sub001/services/events"
	"github.com/asergian/beacon-sub001/services/linguistic"
	"github.com/asergian/beacon-sub001/services/llm"
	"github.com/asergian/beacon-sub001/services/parser"
	"github.com/asergian/beacon-sub001/services/pipeline"
	"github.com/asergian/beacon-sub001/services/provider"
	"github.com/asergian/beacon-sub001/services/quota"
	"github.com/asergian/beacon-sub001/services/semantic"
	"github.com/asergian/beacon-sub001/services/settings"
	"github.com/asergian/beacon-sub001/services/storage"
	"github.com/asergian/beacon-sub001/services/worker"
)

const WorkerModeInProcess = "inprocess"

type Services struct {
	Quota        interfaces.QuotaGovernor
	WorkerRunner interfaces.WorkerRunner
	Fetcher      interfaces.ProviderFetchClient
	Parser       interfaces.ContentParser
	CacheBackend interfaces.CacheBackend
	Cache        interfaces.ResultCache
	Linguistic   interfaces.LinguisticAnalyzer
	Semantic     interfaces.SemanticAnalyzer
	Settings     interfaces.SettingsProvider
	Publisher    interfaces.EventPublisher
	Activity     interfaces.ActivityLogger
	Quarantine   interfaces.StorageService
	Pipeline     interfaces.PipelineOrchestrator

	redis *redis.Client
}

// NewWorkerRegistry holds every action a worker child can execute. The parent uses the same registry
// when running in-process.
func NewWorkerRegistry(cfg *config.Config, log logger.Logger) *worker.Registry {
	registry := worker.NewRegistry()
	provider.RegisterHandlers(registry, provider.NewCredentialSourceOpener(cfg.AppConfig.CredentialsDir, log))
	linguistic.RegisterHandlers(registry)
	return registry
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	s := &Services{}

	// workers
	if cfg.WorkerConfig.Mode == WorkerModeInProcess {
		s.WorkerRunner = worker.NewInProcessRunner(cfg.WorkerConfig, NewWorkerRegistry(cfg, log), log)
	} else {
		runner, err := worker.NewProcessRunner(cfg.WorkerConfig, log)
		if err != nil {
			return nil, err
		}
		s.WorkerRunner = runner
	}

	s.Quota = quota.NewQuotaGovernor(cfg.QuotaConfig, log)
	s.Fetcher = provider.NewFetchClient(cfg, s.Quota, s.WorkerRunner, log)

	quarantine, err := storage.NewQuarantineStorage(cfg.R2StorageConfig)
	if err != nil {
		return nil, errors.Wrap(err, "quarantine storage")
	}
	s.Quarantine = quarantine
	s.Parser = parser.NewContentParser(log, quarantine)

	// cache
	if cfg.RedisConfig.URL != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.RedisConfig.URL)
		if err != nil {
			return nil, err
		}
		s.redis = rdb
		s.CacheBackend = cache.NewRedisBackend(rdb)
	} else {
		log.Warn("REDIS_URL not set, using in-memory result cache")
		s.CacheBackend = cache.NewMemoryBackend(nil)
	}
	s.Cache = cache.NewResultCache(cfg.CacheConfig, s.CacheBackend, log)

	// analysis
	s.Linguistic = linguistic.NewLinguisticAnalyzer(cfg.LinguisticConfig, s.WorkerRunner, log)
	llmClient, err := llm.NewLLMClient(cfg.LLMConfig, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Semantic = semantic.NewSemanticAnalyzer(cfg.SemanticConfig, llmClient, log)

	// settings and activity
	var settingsRepo interfaces.UserSettingsRepository
	var activityRepo interfaces.ActivityLogRepository
	if repos != nil {
		settingsRepo = repos.UserSettingsRepository
		activityRepo = repos.ActivityLogRepository
	}
	s.Settings = settings.NewSettingsProvider(settingsRepo, cfg.SettingsDefaults, log)

	publisher, err := events.NewEventPublisher(cfg.AppConfig.RabbitMQURL, log,
		events.DefaultPublisherConfig(cfg.ActivityConfig.Exchange, cfg.ActivityConfig.RoutingKey))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Publisher = publisher
	s.Activity = activity.NewActivityLogger(activityRepo, publisher, log)

	s.Pipeline = pipeline.NewPipelineOrchestrator(cfg.PipelineConfig, pipeline.Dependencies{
		Settings:   s.Settings,
		Fetcher:    s.Fetcher,
		Parser:     s.Parser,
		Cache:      s.Cache,
		Linguistic: s.Linguistic,
		Semantic:   s.Semantic,
		Activity:   s.Activity,
	}, log)

	return s, nil
}

func (s *Services) Close() {
	if s.Publisher != nil {
		_ = s.Publisher.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
