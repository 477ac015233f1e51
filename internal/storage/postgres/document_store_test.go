package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gsc-indexer/internal/storage"
)

func TestSaveUpsertsDocument(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	doc := []byte(`{"https://example.com/":{"status":"Error","lastCheckedAt":"2024-01-01T00:00:00Z"}}`)
	mock.ExpectExec("INSERT INTO status_cache").
		WithArgs("https_example.com_", doc).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), "https_example.com_", doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSelectsDocument(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "gsc_cache")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT document FROM gsc_cache").
		WithArgs("sc-domain_example.com").
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow([]byte(`{}`)))

	got, err := store.Load(context.Background(), "sc-domain_example.com")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMissingDocument(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT document FROM status_cache").
		WithArgs("https_example.com_").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Load(context.Background(), "https_example.com_")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaPropagatesError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	boom := errors.New("permission denied")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS status_cache").WillReturnError(boom)

	assert.ErrorIs(t, store.EnsureSchema(context.Background()), boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad-table;drop")
	assert.Error(t, err)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
