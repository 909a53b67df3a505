package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/asergian/beacon-sub001/internal/cron/config"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	RedisConfig      *RedisConfig
	CacheConfig      *CacheConfig
	QuotaConfig      *QuotaConfig
	WorkerConfig     *WorkerConfig
	FetchConfig      *FetchConfig
	LinguisticConfig *LinguisticConfig
	SemanticConfig   *SemanticConfig
	LLMConfig        *LLMConfig
	SettingsDefaults *SettingsDefaults
	PipelineConfig   *PipelineConfig
	R2StorageConfig  *R2StorageConfig
	ActivityConfig   *ActivityConfig
	CronConfig       *cron_config.Config
}

func NewDefaultConfig() *Config {
	return &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		RedisConfig:      &RedisConfig{},
		CacheConfig:      &CacheConfig{},
		QuotaConfig:      &QuotaConfig{},
		WorkerConfig:     &WorkerConfig{},
		FetchConfig:      &FetchConfig{},
		LinguisticConfig: &LinguisticConfig{},
		SemanticConfig:   &SemanticConfig{},
		LLMConfig:        &LLMConfig{},
		SettingsDefaults: &SettingsDefaults{},
		PipelineConfig:   &PipelineConfig{},
		R2StorageConfig:  &R2StorageConfig{},
		ActivityConfig:   &ActivityConfig{},
		CronConfig:       &cron_config.Config{},
	}
}

func InitConfig() (*Config, error) {
	config := NewDefaultConfig()

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
