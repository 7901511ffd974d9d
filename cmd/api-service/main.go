package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/alumni-core/internal/alumnicsv"
	"github.com/cuongbtq/alumni-core/internal/api/handler"
	"github.com/cuongbtq/alumni-core/internal/api/router"
	"github.com/cuongbtq/alumni-core/internal/auth"
	"github.com/cuongbtq/alumni-core/internal/bootstrap"
	"github.com/cuongbtq/alumni-core/internal/config"
	"github.com/cuongbtq/alumni-core/internal/paymenttoken"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/validation"
	"github.com/cuongbtq/alumni-core/shared/postgresql"
	"github.com/cuongbtq/alumni-core/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
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
	if rabbitClient != nil {
		defer rabbitClient.Close()
		appLogger.Info("RabbitMQ connection established")
	}

	deps, err := initDependencies(cfg, appLogger.Logger, dbClient, rabbitClient)
	if err != nil {
		return err
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r, err := router.SetupRouter(deps)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initDependencies wires stores and services for the handlers. The API runs
// the PDF processor inline for the admin trigger routes.
func initDependencies(cfg *config.Config, logger *slog.Logger, dbClient *postgresql.Client, rabbitClient *rabbitmq.Client) (*handler.Dependencies, error) {
	stores := bootstrap.NewStores(dbClient, logger)
	ids := registration.NewIDFormat(cfg.Registration.IDPrefix)
	publisher := bootstrap.Publisher(rabbitClient)

	storage, err := bootstrap.InitObjectStore(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	pdfJobs := bootstrap.NewPDFJobHandler(cfg, stores.Profiles, storage, logger)
	processor := bootstrap.NewProcessor(cfg, stores.Jobs, pdfJobs, bootstrap.WorkerID("api"), logger)

	return &handler.Dependencies{
		Logger:         logger,
		Jobs:           stores.Jobs,
		Processor:      processor,
		Publisher:      publisher,
		Profiles:       stores.Profiles,
		IDs:            ids,
		Registration:   registration.NewService(stores.Profiles, stores.Jobs, publisher, ids, logger),
		Importer:       alumnicsv.NewImporter(stores.Profiles, validation.New(ids), logger),
		Payments:       bootstrap.NewPaymentService(cfg, stores, logger),
		Signatures:     paymenttoken.NewSignatureVerifier(cfg.Payments.RazorpayKeySecret, cfg.Payments.RazorpayWebhookSecret),
		Mailer:         bootstrap.InitMailer(&cfg.Email, logger),
		Storage:        storage,
		Covers:         bootstrap.NewCoverExtractor(&cfg.Cover, logger),
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, stores.Profiles),
		CronSecret:     cfg.Auth.CronSecret,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Ready:          bootstrap.ReadyCheck(dbClient, rabbitClient),
	}, nil
}
