package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix prefixes every secret environment override, e.g. ALUMNI_CRON_SECRET.
	EnvPrefix = "ALUMNI"
)

// ErrMissingRequired marks a required key that is absent after loading.
var ErrMissingRequired = errors.New("missing required configuration")

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Logging      LoggingConfig      `yaml:"logging"`
	App          AppConfig          `yaml:"app"`
	Worker       WorkerConfig       `yaml:"worker"`
	Auth         AuthConfig         `yaml:"auth"`
	Storage      StorageConfig      `yaml:"storage"`
	Email        EmailConfig        `yaml:"email"`
	Payments     PaymentsConfig     `yaml:"payments"`
	PDF          PDFConfig          `yaml:"pdf"`
	Cover        CoverConfig        `yaml:"cover"`
	Registration RegistrationConfig `yaml:"registration"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration.
// An empty host disables messaging; the worker then relies on polling alone.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// Enabled reports whether a broker is configured.
func (r RabbitMQConfig) Enabled() bool {
	return r.Host != ""
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	CleanupAfter      time.Duration `yaml:"cleanup_after"`
}

// AuthConfig holds bearer token verification and cron credentials.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	JWTIssuer  string `yaml:"jwt_issuer"`
	CronSecret string `yaml:"cron_secret"`
}

// StorageConfig points at the R2 bucket, spoken to over the S3 API.
type StorageConfig struct {
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	CustomDomain    string `yaml:"custom_domain"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// EmailConfig selects SendGrid when an API key is present, console output otherwise.
type EmailConfig struct {
	SendgridAPIKey string   `yaml:"sendgrid_api_key"`
	FromEmail      string   `yaml:"from_email"`
	FromName       string   `yaml:"from_name"`
	AdminEmails    []string `yaml:"admin_emails"`
}

// PaymentsConfig holds payment link and gateway settings.
type PaymentsConfig struct {
	LinkBaseURL           string        `yaml:"link_base_url"`
	TokenTTL              time.Duration `yaml:"token_ttl"`
	Currency              string        `yaml:"currency"`
	RazorpayKeySecret     string        `yaml:"razorpay_key_secret"`
	RazorpayWebhookSecret string        `yaml:"razorpay_webhook_secret"`
}

// PDFConfig holds registration PDF rendering settings.
type PDFConfig struct {
	LogoURL      string        `yaml:"logo_url"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// CoverConfig holds headless browser settings for cover extraction.
type CoverConfig struct {
	ChromePath        string        `yaml:"chrome_path"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SettleInterval    time.Duration `yaml:"settle_interval"`
	SettleTimeout     time.Duration `yaml:"settle_timeout"`
	MaxWidth          int           `yaml:"max_width"`
	JPEGQuality       int           `yaml:"jpeg_quality"`
	TempDir           string        `yaml:"temp_dir"`
}

// RegistrationConfig holds registration id settings.
type RegistrationConfig struct {
	IDPrefix string `yaml:"id_prefix"`
}

// secretsEnv lists the environment overrides applied after the YAML file.
type secretsEnv struct {
	DatabasePassword      string `envconfig:"DATABASE_PASSWORD"`
	RabbitMQPassword      string `envconfig:"RABBITMQ_PASSWORD"`
	JWTSecret             string `envconfig:"AUTH_JWT_SECRET"`
	CronSecret            string `envconfig:"CRON_SECRET"`
	SendgridAPIKey        string `envconfig:"SENDGRID_API_KEY"`
	R2AccessKeyID         string `envconfig:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey     string `envconfig:"R2_SECRET_ACCESS_KEY"`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`
}

// Load reads the YAML file, fills defaults and overlays secrets from the environment.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	var env secretsEnv
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Database.Password, env.DatabasePassword)
	override(&c.RabbitMQ.Password, env.RabbitMQPassword)
	override(&c.Auth.JWTSecret, env.JWTSecret)
	override(&c.Auth.CronSecret, env.CronSecret)
	override(&c.Email.SendgridAPIKey, env.SendgridAPIKey)
	override(&c.Storage.AccessKeyID, env.R2AccessKeyID)
	override(&c.Storage.SecretAccessKey, env.R2SecretAccessKey)
	override(&c.Payments.RazorpayKeySecret, env.RazorpayKeySecret)
	override(&c.Payments.RazorpayWebhookSecret, env.RazorpayWebhookSecret)
	return nil
}

func (c *Config) applyDefaults() {
	setDuration := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	setString := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}

	setDuration(&c.Server.ShutdownTimeout, 30*time.Second)
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 20 << 20
	}

	setInt(&c.Worker.Concurrency, 2)
	setDuration(&c.Worker.JobTimeout, 5*time.Minute)
	setDuration(&c.Worker.HeartbeatInterval, 30*time.Second)
	setDuration(&c.Worker.PollInterval, 10*time.Second)
	setDuration(&c.Worker.StaleAfter, 15*time.Minute)
	setDuration(&c.Worker.ShutdownTimeout, 30*time.Second)
	setDuration(&c.Worker.CleanupAfter, 30*24*time.Hour)
	setInt(&c.RabbitMQ.Consumer.PrefetchCount, c.Worker.Concurrency)

	setString(&c.Storage.Bucket, "bghs-gallery")

	setString(&c.Email.FromEmail, "admin@alumnibghs.org")
	setString(&c.Email.FromName, "BGHS Alumni")

	setDuration(&c.Payments.TokenTTL, 72*time.Hour)
	setString(&c.Payments.Currency, "INR")

	setDuration(&c.PDF.FetchTimeout, 15*time.Second)

	setDuration(&c.Cover.NavigationTimeout, 60*time.Second)
	setDuration(&c.Cover.SettleInterval, 250*time.Millisecond)
	setDuration(&c.Cover.SettleTimeout, 5*time.Second)
	setInt(&c.Cover.MaxWidth, 800)
	setInt(&c.Cover.JPEGQuality, 85)

	setString(&c.Registration.IDPrefix, "BGHSA")
}

// StorageEndpoint returns the S3 API host for the configured account.
func (s StorageConfig) StorageEndpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return s.AccountID + ".r2.cloudflarestorage.com"
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled() {
		return nil
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch {
	case c.Storage.AccountID == "" && c.Storage.Endpoint == "":
		return fmt.Errorf("%w: storage.account_id or storage.endpoint", ErrMissingRequired)
	case c.Storage.AccessKeyID == "":
		return fmt.Errorf("%w: storage.access_key_id", ErrMissingRequired)
	case c.Storage.SecretAccessKey == "":
		return fmt.Errorf("%w: storage.secret_access_key", ErrMissingRequired)
	}
	return nil
}

// ValidateAPIConfig checks everything the API service needs before it serves traffic.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwt_secret", ErrMissingRequired)
	}

	if c.Auth.CronSecret == "" {
		return fmt.Errorf("%w: auth.cron_secret", ErrMissingRequired)
	}

	if err := c.validatePayments(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.validateWorkerTimings()
}

// ValidateWorkerConfig checks the worker service configuration.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateWorkerTimings(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if len(c.Email.AdminEmails) == 0 {
		return fmt.Errorf("%w: email.admin_emails", ErrMissingRequired)
	}

	return c.validateStorage()
}

// ValidateCLIConfig checks the subset used by the operator CLI.
func (c *Config) ValidateCLIConfig() error {
	return c.validateDatabase()
}

func (c *Config) validateWorkerTimings() error {
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.StaleAfter <= c.Worker.HeartbeatInterval {
		return fmt.Errorf("worker stale_after must exceed heartbeat_interval")
	}

	return nil
}

func (c *Config) validatePayments() error {
	if c.Payments.LinkBaseURL == "" {
		return fmt.Errorf("%w: payments.link_base_url", ErrMissingRequired)
	}

	u, err := url.Parse(c.Payments.LinkBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid payments link_base_url: %q", c.Payments.LinkBaseURL)
	}

	if c.Payments.TokenTTL <= 0 {
		return fmt.Errorf("payments token_ttl must be greater than 0")
	}

	return nil
}
