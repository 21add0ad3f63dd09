package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "loans_one_open_per_copy"}

	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.True(t, IsUniqueViolation(dup, "other", "loans_one_open_per_copy"))
	assert.False(t, IsUniqueViolation(dup, "fines_loan_reason_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE copies").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)

		err = runInTx(ctx, tx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "UPDATE copies SET withdrawn_at = now()")
			return err
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollsBackOnError", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)

		failure := errors.New("copy unavailable")
		err = runInTx(ctx, tx, func(tx pgx.Tx) error { return failure })
		assert.ErrorIs(t, err, failure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollsBackAndRepanics", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		tx, err := mock.Begin(ctx)
		require.NoError(t, err)

		assert.Panics(t, func() {
			_ = runInTx(ctx, tx, func(tx pgx.Tx) error { panic("bad state") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
