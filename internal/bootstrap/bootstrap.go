// Package bootstrap builds the shared runtime pieces of the API service, the
// worker service and the operator CLI from one loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/alumni-core/internal/config"
	"github.com/cuongbtq/alumni-core/internal/cover"
	"github.com/cuongbtq/alumni-core/internal/email"
	"github.com/cuongbtq/alumni-core/internal/objectstore"
	"github.com/cuongbtq/alumni-core/internal/paymenttoken"
	"github.com/cuongbtq/alumni-core/internal/pdf"
	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/queue"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/worker"
	"github.com/cuongbtq/alumni-core/migrations"
	"github.com/cuongbtq/alumni-core/shared/logger"
	"github.com/cuongbtq/alumni-core/shared/postgresql"
	"github.com/cuongbtq/alumni-core/shared/rabbitmq"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	})
}

func postgresConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(postgresConfig(cfg), logger)
}

// NewMigrator opens the embedded migrations against the configured database.
func NewMigrator(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Migrator, error) {
	return postgresql.NewMigrator(migrations.FS, postgresConfig(cfg).URL(), logger)
}

// MigrateUp applies pending migrations when auto_migrate is set.
func MigrateUp(cfg *config.DatabaseConfig, logger *slog.Logger) error {
	if !cfg.AutoMigrate {
		return nil
	}
	m, err := NewMigrator(cfg, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// InitRabbitMQ initializes the RabbitMQ client. It returns nil when no broker
// is configured.
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	if !cfg.Enabled() {
		logger.Warn("RabbitMQ not configured, jobs are found by polling only")
		return nil, nil
	}

	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// Publisher returns the broker client as a registration.Publisher, or a nil
// interface when there is no broker.
func Publisher(client *rabbitmq.Client) registration.Publisher {
	if client == nil {
		return nil
	}
	return client
}

// ObjectStoreConfig maps the storage section onto the R2 client settings.
func ObjectStoreConfig(cfg *config.StorageConfig) objectstore.Config {
	return objectstore.Config{
		AccountID:       cfg.AccountID,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		Endpoint:        cfg.StorageEndpoint(),
		CustomDomain:    cfg.CustomDomain,
		Secure:          cfg.UseSSL,
	}
}

// InitObjectStore connects to the R2 bucket.
func InitObjectStore(cfg *config.StorageConfig, logger *slog.Logger) (*objectstore.R2Store, error) {
	return objectstore.New(ObjectStoreConfig(cfg), logger)
}

// InitMailer selects SendGrid or console delivery.
func InitMailer(cfg *config.EmailConfig, logger *slog.Logger) email.Sender {
	return email.NewSender(email.Config{
		SendgridAPIKey: cfg.SendgridAPIKey,
		FromEmail:      cfg.FromEmail,
		FromName:       cfg.FromName,
	}, logger)
}

// Stores are the Postgres repositories every binary reads.
type Stores struct {
	Jobs     *queue.PostgresStore
	Profiles *profile.PostgresRepository
	Payments *paymenttoken.PostgresRepository
}

// NewStores wraps the database client in the repositories.
func NewStores(db *postgresql.Client, logger *slog.Logger) *Stores {
	return &Stores{
		Jobs:     queue.NewPostgresStore(db.GetDB(), logger),
		Profiles: profile.NewPostgresRepository(db.GetDB(), logger),
		Payments: paymenttoken.NewPostgresRepository(db.GetDB()),
	}
}

// NewPaymentService builds the payment token service.
func NewPaymentService(cfg *config.Config, stores *Stores, logger *slog.Logger) *paymenttoken.Service {
	return paymenttoken.NewService(stores.Payments, stores.Profiles, paymenttoken.Config{
		LinkBaseURL: cfg.Payments.LinkBaseURL,
		TTL:         cfg.Payments.TokenTTL,
		Currency:    cfg.Payments.Currency,
	}, logger)
}

// NewCoverExtractor renders PDF covers in headless Chrome.
func NewCoverExtractor(cfg *config.CoverConfig, logger *slog.Logger) *cover.Extractor {
	return cover.NewExtractor(cover.NewChromeBrowser(cfg.ChromePath), cover.Options{
		NavigationTimeout: cfg.NavigationTimeout,
		SettleInterval:    cfg.SettleInterval,
		SettleTimeout:     cfg.SettleTimeout,
		MaxWidth:          cfg.MaxWidth,
		JPEGQuality:       cfg.JPEGQuality,
		TempDir:           cfg.TempDir,
	}, logger)
}

// NewPDFJobHandler builds the pdf_generation handler with its renderer and mail delivery.
func NewPDFJobHandler(cfg *config.Config, profiles profile.Repository, store objectstore.Store, logger *slog.Logger) *registration.PDFJobHandler {
	logo := cfg.PDF.LogoURL
	if logo == "" {
		logo = pdf.ResolveLogoURL(cfg.Storage.CustomDomain, cfg.Storage.AccountID, cfg.Storage.Bucket)
	}
	generator := pdf.NewGenerator(pdf.NewHTTPFetcher(cfg.PDF.FetchTimeout), pdf.Options{LogoURL: logo}, logger)

	return registration.NewPDFJobHandler(profiles, generator, store, InitMailer(&cfg.Email, logger), cfg.Email.AdminEmails, logger)
}

// NewProcessor builds a processor with every job handler registered.
func NewProcessor(cfg *config.Config, jobs queue.Store, pdfJobs worker.Handler, workerID string, logger *slog.Logger) *worker.Processor {
	p := worker.NewProcessor(worker.ProcessorConfig{
		Store:             jobs,
		WorkerID:          workerID,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		Logger:            logger,
	})
	p.Register(queue.TypePDFGeneration, pdfJobs)
	return p
}

// WorkerID names this process in claimed jobs.
func WorkerID(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%s", prefix, host, uuid.NewString()[:8])
}

// ReadyCheck reports database health, and broker health when one is configured.
func ReadyCheck(db *postgresql.Client, broker *rabbitmq.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.HealthCheck(ctx); err != nil {
			return err
		}
		if broker != nil && !broker.IsConnected() {
			return fmt.Errorf("rabbitmq disconnected")
		}
		return nil
	}
}
