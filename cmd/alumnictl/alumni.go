package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/alumni-core/internal/alumnicsv"
	"github.com/cuongbtq/alumni-core/internal/bootstrap"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/validation"
)

func alumniCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alumni",
		Short: "Export and import alumni profiles as CSV",
	}
	cmd.AddCommand(alumniExportCmd())
	cmd.AddCommand(alumniImportCmd())
	return cmd
}

func alumniExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every alumni profile as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			stores := bootstrap.NewStores(e.db, e.logger.Logger)
			n, err := alumnicsv.Export(cmd.Context(), stores.Profiles, w)
			if err != nil {
				return fmt.Errorf("failed to export alumni: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d profile(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

func alumniImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create or update profiles from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			stores := bootstrap.NewStores(e.db, e.logger.Logger)
			ids := registration.NewIDFormat(e.cfg.Registration.IDPrefix)
			importer := alumnicsv.NewImporter(stores.Profiles, validation.New(ids), e.logger.Logger)

			res, err := importer.Import(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("failed to import alumni: %w", err)
			}
			return printJSON(cmd, res)
		},
	}
}
