package postgresql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "explicit sslmode",
			config: Config{Host: "db", Port: 5432, User: "alumni", Password: "secret", Database: "alumni", SSLMode: "require"},
			want:   "host=db port=5432 user=alumni password=secret dbname=alumni sslmode=require",
		},
		{
			name:   "sslmode defaults to disable",
			config: Config{Host: "localhost", Port: 6543, User: "u", Password: "p", Database: "d"},
			want:   "host=localhost port=6543 user=u password=p dbname=d sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestConfig_URL(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "alumni", Password: "p@ss/word", Database: "alumni"}
	assert.Equal(t, "postgres://alumni:p%40ss%2Fword@db:5432/alumni?sslmode=disable", cfg.URL())
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = WithTx(context.Background(), sqlx.NewDb(db, "sqlmock"), func(tx *sqlx.Tx) error {
			_, err := tx.Exec("UPDATE profiles SET role = 'alumni_member'")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = WithTx(context.Background(), sqlx.NewDb(db, "sqlmock"), func(tx *sqlx.Tx) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
