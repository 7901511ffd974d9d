package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/alumni-core/internal/bootstrap"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema migrations",
	}
	cmd.AddCommand(migrateStepCmd("up", "Apply all pending migrations"))
	cmd.AddCommand(migrateStepCmd("down", "Roll back every applied migration"))
	return cmd
}

func migrateStepCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appLogger, err := loadConfig()
			if err != nil {
				return err
			}
			defer appLogger.Close()

			m, err := bootstrap.NewMigrator(&cfg.Database, appLogger.Logger)
			if err != nil {
				return err
			}
			defer m.Close()

			if direction == "down" {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s complete\n", direction)
			return nil
		},
	}
}
