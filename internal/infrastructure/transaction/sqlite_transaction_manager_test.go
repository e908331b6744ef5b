package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE items (name TEXT NOT NULL)")
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	return n
}

func TestInTransaction_Commit(t *testing.T) {
	db := setupDB(t)
	tm := NewSQLiteTransactionManager(db)

	err := tm.InTransaction(context.Background(), func(txCtx context.Context) error {
		tx, ok := GetTxFromContext(txCtx)
		require.True(t, ok)
		_, err := tx.ExecContext(txCtx, "INSERT INTO items (name) VALUES ('a')")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestInTransaction_RollbackOnError(t *testing.T) {
	db := setupDB(t)
	tm := NewSQLiteTransactionManager(db)
	boom := errors.New("boom")

	err := tm.InTransaction(context.Background(), func(txCtx context.Context) error {
		tx, _ := GetTxFromContext(txCtx)
		_, err := tx.ExecContext(txCtx, "INSERT INTO items (name) VALUES ('a')")
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, db))
}

func TestInTransaction_NestedJoinsOuter(t *testing.T) {
	db := setupDB(t)
	tm := NewSQLiteTransactionManager(db)

	err := tm.InTransaction(context.Background(), func(outer context.Context) error {
		outerTx, _ := GetTxFromContext(outer)
		return tm.InTransaction(outer, func(inner context.Context) error {
			innerTx, ok := GetTxFromContext(inner)
			require.True(t, ok)
			assert.Same(t, outerTx, innerTx)
			_, err := innerTx.ExecContext(inner, "INSERT INTO items (name) VALUES ('b')")
			return err
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestGetTxFromContext_Empty(t *testing.T) {
	_, ok := GetTxFromContext(context.Background())
	assert.False(t, ok)
}

func TestMockTransactionManager(t *testing.T) {
	tm := NewMockTransactionManager()
	ctx := context.Background()

	called := false
	err := tm.InTransaction(ctx, func(txCtx context.Context) error {
		called = true
		assert.Equal(t, ctx, txCtx)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, int64(1), tm.Calls())
}
