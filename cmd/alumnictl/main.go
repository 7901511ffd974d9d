// Command alumnictl is the operator CLI for migrations, the job queue,
// payment links and alumni exports.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/alumni-core/internal/bootstrap"
	"github.com/cuongbtq/alumni-core/internal/config"
	"github.com/cuongbtq/alumni-core/shared/logger"
	"github.com/cuongbtq/alumni-core/shared/postgresql"
)

var version = "dev"

var configPath string

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("ALUMNICTL_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}

	rootCmd := newRootCmd(defaultConfigPath)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(defaultConfigPath string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "alumnictl",
		Short:         "Operate the alumni association backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(paymentsCmd())
	rootCmd.AddCommand(alumniCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

// env is what a command needs after the config is loaded.
type env struct {
	cfg    *config.Config
	logger *logger.Logger
	db     *postgresql.Client
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
	e.logger.Close()
}

// loadConfig reads and validates the config named by --config.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateCLIConfig(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

// openEnv loads the config and connects to the database.
func openEnv() (*env, error) {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		appLogger.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return &env{cfg: cfg, logger: appLogger, db: db}, nil
}
