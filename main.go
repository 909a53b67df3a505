package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/internal/database"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/repository"
	"github.com/asergian/beacon-sub001/internal/utils"
	"github.com/asergian/beacon-sub001/server"
	"github.com/asergian/beacon-sub001/services"
	"github.com/asergian/beacon-sub001/services/worker"
)

func main() {
	app := &cli.App{
		Name:  "beacon",
		Usage: "email ingestion and analysis service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:   "worker",
				Usage:  "Execute one worker task read from stdin",
				Hidden: true,
				Action: runWorker,
			},
			{
				Name:  "run",
				Usage: "Run the pipeline once and print every event as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "credential", Required: true, Usage: "credential reference"},
					&cli.StringFlag{Name: "query", Usage: "provider search query"},
					&cli.IntFlag{Name: "days-back", Usage: "look-back window in days"},
					&cli.IntFlag{Name: "max-results", Usage: "maximum messages to return"},
					&cli.StringSliceFlag{Name: "category", Usage: "restrict results to a category"},
				},
				Action: runOnce,
			},
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, errors.Wrap(err, "config initialization failed")
	}
	if cfg == nil {
		return nil, errors.New("config is empty")
	}
	return cfg, nil
}

func runServer(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appLogger := server.NewLogger(cfg)
	appLogger.Info("Beacon starting up...")

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return errors.Wrap(err, "database initialization failed")
	}
	if db == nil {
		appLogger.Warn("No database configured, using default settings")
	}

	srv, err := server.NewServer(cfg, appLogger, db)
	if err != nil {
		return errors.Wrap(err, "server setup failed")
	}
	if err := srv.Run(); err != nil {
		return errors.Wrap(err, "server startup failed")
	}

	appLogger.Info("Shutdown complete")
	return nil
}

// runWorker is the child side of the process runner: one task on stdin, one response on stdout.
func runWorker(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appLogger := server.NewLogger(cfg)
	defer appLogger.Sync()

	closer, err := server.InitTracing(cfg, appLogger)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return worker.Serve(ctx, os.Stdin, os.Stdout, services.NewWorkerRegistry(cfg, appLogger), appLogger)
}

func runOnce(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appLogger := server.NewLogger(cfg)
	defer appLogger.Sync()

	closer, err := server.InitTracing(cfg, appLogger)
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return errors.Wrap(err, "database initialization failed")
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := services.InitServices(ctx, cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return err
	}
	defer svcs.Close()

	request := models.PipelineRequest{
		RequestID:     utils.GenerateNanoIDWithPrefix("run", 16),
		UserID:        c.String("user"),
		CredentialRef: c.String("credential"),
		Query:         c.String("query"),
		DaysBack:      c.Int("days-back"),
		MaxResults:    c.Int("max-results"),
		Categories:    c.StringSlice("category"),
		Stream:        true,
	}

	encoder := json.NewEncoder(os.Stdout)
	var failure string
	for event := range svcs.Pipeline.Stream(ctx, request) {
		if err := encoder.Encode(event); err != nil {
			return err
		}
		if event.Error != "" {
			failure = event.Error
		}
	}
	if failure != "" {
		return cli.Exit(failure, 1)
	}
	return nil
}

func runMigrate(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.DatabaseConfig.Enabled() {
		return errors.New("BEACON_POSTGRES_HOST is required for migrations")
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return errors.Wrap(err, "database initialization failed")
	}
	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	log.Println("Database migration completed successfully")
	return nil
}
