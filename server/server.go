package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/asergian/beacon-sub001/api"
	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/cron"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/repository"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/services"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config       *config.Config
	log          logger.Logger
	db           *gorm.DB
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

// NewLogger builds the process logger. Output goes to stderr so worker children keep stdout clean.
func NewLogger(cfg *config.Config) logger.Logger {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return appLogger
}

// InitTracing installs the global tracer. A disabled jaeger config yields a no-op tracer.
func InitTracing(cfg *config.Config, log logger.Logger) (io.Closer, error) {
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, log)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}

// NewServer wires every service. db may be nil, in which case settings come from defaults and activity
// is only published.
func NewServer(cfg *config.Config, log logger.Logger, db *gorm.DB) (*Server, error) {
	closer, err := InitTracing(cfg, log)
	if err != nil {
		return nil, err
	}

	repos := repository.InitRepositories(db)

	svcs, err := services.InitServices(context.Background(), cfg, log, repos)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          log,
		db:           db,
		router:       router,
		services:     svcs,
		repositories: repos,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Initialize() error {
	api.RegisterRoutes(s.router, api.RouteDependencies{
		Pipeline:        s.services.Pipeline,
		Quota:           s.services.Quota,
		ReadinessChecks: s.readinessChecks(),
		Log:             s.log,
	}, s.config.AppConfig.APIKey)

	var k8s kubernetes.Interface
	if s.config.AppConfig.LeaderElection {
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return errors.Wrap(err, "leader election requires in-cluster config")
		}
		k8s, err = kubernetes.NewForConfig(restConfig)
		if err != nil {
			return errors.Wrap(err, "failed to create kubernetes client")
		}
	}

	s.cronManager = cron.NewCronManager(s.config, s.log, k8s, s.activityRepository(), s.services.Quarantine)

	return nil
}

func (s *Server) readinessChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"cache": s.services.CacheBackend.Ping,
	}
	if s.db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return checks
}

func (s *Server) activityRepository() interfaces.ActivityLogRepository {
	if s.repositories == nil {
		return nil
	}
	return s.repositories.ActivityLogRepository
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	if err := s.Initialize(); err != nil {
		s.services.Close()
		return err
	}

	if err := s.cronManager.Start(s.config.AppConfig.PodName, s.config.AppConfig.PodNamespace); err != nil {
		s.services.Close()
		return err
	}
	s.log.Info("Scheduler started")

	serveErr := make(chan error, 1)
	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	})
	s.log.Info("Beacon is now running")

	return s.waitForShutdown(serveErr)
}

func (s *Server) waitForShutdown(serveErr <-chan error) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		s.log.Infof("Received %s, shutting down", sig)
	case runErr = <-serveErr:
		s.log.Errorf("HTTP server error: %v", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.log.Info("HTTP server shut down")
	}

	s.cronManager.Stop()
	s.services.Close()

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	_ = s.log.Sync()

	return runErr
}
