//go:build integration

package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/alumni-core/migrations"
	"github.com/cuongbtq/alumni-core/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("alumni_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	migrator, err := postgresql.NewMigrator(migrations.FS, connStr, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	db, err := sqlx.Connect("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := setupPostgres(t)
	store := NewPostgresStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	t.Run("add, peek and fail to terminal", func(t *testing.T) {
		id, err := store.AddJob(ctx, "scenario", map[string]string{"userId": "u1"})
		require.NoError(t, err)

		job, err := store.GetNextJob(ctx, "scenario")
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, StatusPending, job.Status)
		assert.Equal(t, 0, job.Attempts)

		var statuses []Status
		for i := 0; i < 3; i++ {
			st, err := store.MarkJobFailed(ctx, id, fmt.Sprintf("attempt %d", i+1))
			require.NoError(t, err)
			statuses = append(statuses, st)
		}
		assert.Equal(t, []Status{StatusPending, StatusPending, StatusFailed}, statuses)
	})

	t.Run("idempotency key dedupes", func(t *testing.T) {
		a, err := store.Enqueue(ctx, NewJob{Type: "dedupe", IdempotencyKey: "k-1"})
		require.NoError(t, err)
		b, err := store.Enqueue(ctx, NewJob{Type: "dedupe", IdempotencyKey: "k-1"})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("concurrent claims never share a job", func(t *testing.T) {
		const jobs = 30
		for i := 0; i < jobs; i++ {
			_, err := store.AddJob(ctx, "race", map[string]int{"n": i})
			require.NoError(t, err)
		}

		var (
			mu   sync.Mutex
			seen = map[string]int{}
			wg   sync.WaitGroup
		)
		for w := 0; w < 6; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for {
					job, err := store.ClaimNextJob(ctx, "race", fmt.Sprintf("w-%d", worker))
					if err != nil || job == nil {
						return
					}
					mu.Lock()
					seen[job.ID]++
					mu.Unlock()
				}
			}(w)
		}
		wg.Wait()

		assert.Len(t, seen, jobs)
		for id, n := range seen {
			assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
		}
	})
}
