package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/alumni-core/internal/bootstrap"
	"github.com/cuongbtq/alumni-core/internal/queue"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive the job queue",
	}
	cmd.AddCommand(jobsEnqueueCmd())
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsStatsCmd())
	cmd.AddCommand(jobsCleanupCmd())
	cmd.AddCommand(jobsProcessNextCmd())
	cmd.AddCommand(jobsReleaseStaleCmd())
	return cmd
}

func jobsEnqueueCmd() *cobra.Command {
	var (
		jobType     string
		payload     string
		key         string
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Add a pending job",
		Example: `  alumnictl jobs enqueue --type pdf_generation --payload '{"user_id":"..."}'
  alumnictl jobs enqueue --type pdf_generation --payload '{"user_id":"..."}' --key reg-42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := json.RawMessage(payload)
			if !json.Valid(raw) {
				return fmt.Errorf("payload is not valid JSON")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			jobs := queue.NewPostgresStore(e.db.GetDB(), e.logger.Logger)
			id, err := jobs.Enqueue(cmd.Context(), queue.NewJob{
				Type:           jobType,
				Payload:        raw,
				IdempotencyKey: key,
				MaxAttempts:    maxAttempts,
			})
			if err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Job enqueued: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", queue.TypePDFGeneration, "job type")
	cmd.Flags().StringVarP(&payload, "payload", "p", "{}", "job payload as JSON")
	cmd.Flags().StringVarP(&key, "key", "k", "", "idempotency key")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", queue.DefaultMaxAttempts, "attempts before the job fails")
	return cmd
}

func jobsListCmd() *cobra.Command {
	var (
		jobType string
		status  string
		limit   int
		cursor  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.Filter{Type: jobType, PageSize: queue.ClampPageSize(limit)}
			if status != "" {
				st, err := queue.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = st
			}
			if cursor != "" {
				c, err := queue.DecodeCursor(cursor)
				if err != nil {
					return fmt.Errorf("invalid cursor: %w", err)
				}
				filter.Cursor = c
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			jobs := queue.NewPostgresStore(e.db.GetDB(), e.logger.Logger)
			list, err := jobs.ListJobs(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			page, next := queue.Page(list, filter.PageSize)
			return printJSON(cmd, map[string]any{"jobs": page, "next_cursor": next})
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "", "only jobs of this type")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only jobs in this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	return cmd
}

func jobsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			jobs := queue.NewPostgresStore(e.db.GetDB(), e.logger.Logger)
			stats, err := jobs.GetJobStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get job stats: %w", err)
			}
			return printJSON(cmd, stats)
		},
	}
}

func jobsCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed jobs older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--older-than-days must be positive")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			jobs := queue.NewPostgresStore(e.db.GetDB(), e.logger.Logger)
			n, err := jobs.CleanupOldJobs(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("failed to clean up jobs: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d completed job(s)\n", n)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "older-than-days", "d", 30, "minimum age in days")
	return cmd
}

func jobsReleaseStaleCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "release-stale",
		Short: "Return processing jobs with no recent heartbeat to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			if olderThan <= 0 {
				olderThan = e.cfg.Worker.StaleAfter
			}

			jobs := queue.NewPostgresStore(e.db.GetDB(), e.logger.Logger)
			n, err := jobs.ReleaseStaleJobs(cmd.Context(), olderThan)
			if err != nil {
				return fmt.Errorf("failed to release stale jobs: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Released %d stale job(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "heartbeat age (defaults to worker.stale_after)")
	return cmd
}

func jobsProcessNextCmd() *cobra.Command {
	var jobType string

	cmd := &cobra.Command{
		Use:   "process-next",
		Short: "Claim and run the oldest runnable job in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			storage, err := bootstrap.InitObjectStore(&e.cfg.Storage, e.logger.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize object storage: %w", err)
			}

			stores := bootstrap.NewStores(e.db, e.logger.Logger)
			pdfJobs := bootstrap.NewPDFJobHandler(e.cfg, stores.Profiles, storage, e.logger.Logger)
			processor := bootstrap.NewProcessor(e.cfg, stores.Jobs, pdfJobs, bootstrap.WorkerID("cli"), e.logger.Logger)

			out, err := processor.ProcessNext(cmd.Context(), jobType)
			if err != nil {
				return err
			}
			if out == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No runnable jobs")
				return nil
			}
			if !out.Succeeded() {
				return fmt.Errorf("job %s %s: %w", out.JobID, out.Status, out.Err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s\n", out.JobID, out.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", queue.TypePDFGeneration, "job type to claim")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
