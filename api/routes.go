package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/asergian/beacon-sub001/api/handlers"
	"github.com/asergian/beacon-sub001/api/middleware"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/tracing"
)

const AppSource = "beacon"

type RouteDependencies struct {
	Pipeline        interfaces.PipelineOrchestrator
	Quota           interfaces.QuotaGovernor
	ReadinessChecks map[string]func(ctx context.Context) error
	Log             logger.Logger
}

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, deps RouteDependencies, apikey string) {
	if deps.Pipeline == nil {
		panic("Pipeline cannot be nil")
	}
	if deps.Quota == nil {
		panic("Quota governor cannot be nil")
	}
	if deps.Log == nil {
		deps.Log = logger.NewNopLogger()
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/ready", handlers.Readiness(deps.ReadinessChecks))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: apikey,
	})

	pipelineHandler := handlers.NewPipelineHandler(deps.Pipeline, deps.Log)

	v1 := r.Group("/v1")
	v1.Use(apiKeyMiddleware)
	v1.Use(middleware.UserIdMiddleware())
	v1.Use(middleware.RequestIdMiddleware())
	v1.Use(middleware.CustomContextMiddleware(AppSource))
	v1.Use(middleware.TracingMiddleware())
	{
		pipeline := v1.Group("/pipeline")
		{
			pipeline.POST("", pipelineHandler.Run())
			pipeline.POST("/stream", pipelineHandler.Stream())
		}

		v1.GET("/quota/:credential", handlers.QuotaStatus(deps.Quota))
	}
}
