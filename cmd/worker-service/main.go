package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/alumni-core/internal/bootstrap"
	"github.com/cuongbtq/alumni-core/internal/config"
	"github.com/cuongbtq/alumni-core/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := bootstrap.WorkerID("worker")
	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	if err := bootstrap.MigrateUp(&cfg.Database, appLogger.Logger); err != nil {
		return err
	}

	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	storage, err := bootstrap.InitObjectStore(&cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	stores := bootstrap.NewStores(dbClient, appLogger.Logger)
	pdfJobs := bootstrap.NewPDFJobHandler(cfg, stores.Profiles, storage, appLogger.Logger)
	processor := bootstrap.NewProcessor(cfg, stores.Jobs, pdfJobs, workerID, appLogger.Logger)

	workerCfg := &worker.Config{
		Logger:        appLogger.Logger,
		Store:         stores.Jobs,
		Processor:     processor,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		PollInterval:  cfg.Worker.PollInterval,
		StaleAfter:    cfg.Worker.StaleAfter,
		CleanupAfter:  cfg.Worker.CleanupAfter,
	}
	if rabbitClient != nil {
		defer rabbitClient.Close()
		workerCfg.Source = rabbitClient
		appLogger.Info("RabbitMQ connection established")
	}
	workerInstance := worker.NewWorker(workerCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := workerInstance.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit",
			slog.Any("error", err),
		)
	}

	appLogger.Info("Worker service stopped")
	return nil
}
