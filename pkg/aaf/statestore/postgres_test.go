package statestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS aaf_workflow_state").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_aaf_workflow_state_expires_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	p, err := NewPostgresBackend(db, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return p, mock
}

func TestPostgresBackend_Save(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO aaf_workflow_state").
		WithArgs("workflow:1", []byte(`{"a":1}`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Save(context.Background(), "workflow:1", []byte(`{"a":1}`), time.Hour))
}

func TestPostgresBackend_SaveError(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO aaf_workflow_state").
		WillReturnError(errors.New("connection reset"))

	err := p.Save(context.Background(), "k", []byte("v"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresBackend_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectQuery("SELECT value FROM aaf_workflow_state").
			WithArgs("workflow:1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("v")))

		data, err := p.Load(ctx, "workflow:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), data)
	})

	t.Run("missing or expired", func(t *testing.T) {
		p, mock := newMockPostgres(t)
		mock.ExpectQuery("SELECT value FROM aaf_workflow_state").
			WithArgs("workflow:2", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"value"}))

		_, err := p.Load(ctx, "workflow:2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresBackend_Exists(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT 1 FROM aaf_workflow_state").
		WithArgs("k", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM aaf_workflow_state").
		WithArgs("gone", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	ok, err := p.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Exists(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresBackend_Delete(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("DELETE FROM aaf_workflow_state WHERE key").
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Delete(context.Background(), "k"))
}

func TestPostgresBackend_List(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT key FROM aaf_workflow_state").
		WithArgs("workflow:%", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("workflow:a").
			AddRow("workflow:b"))

	keys, err := p.List(context.Background(), "workflow:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow:a", "workflow:b"}, keys)
}

func TestPostgresBackend_CleanupExpired(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("DELETE FROM aaf_workflow_state").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := p.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgresBackend_CustomTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs_state").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_runs_state_expires_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = NewPostgresBackend(db, "runs_state")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackend_InvalidTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgresBackend(db, "state; DROP TABLE users")
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestPostgresBackend_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(errors.New("permission denied"))

	_, err = NewPostgresBackend(db, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table")
}
