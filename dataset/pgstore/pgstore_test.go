package pgstore

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/spindleworks/spindle"
)

type item struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func TestNew_RejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for _, name := range []string{"", "Frontier", "items; drop table users", "1items"} {
		_, err := New[item](mock, name)
		require.Error(t, err, "table name %q must be rejected", name)
	}

	_, err = New[item](nil, "frontier")
	require.Error(t, err)
}

func TestPush_InsertsPayload(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := New[item](mock, "frontier")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO frontier").
		WithArgs([]byte(`{"url":"https://example.com","title":"Home"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Push(context.Background(), item{URL: "https://example.com", Title: "Home"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPop_ReturnsOldestItem(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := New[item](mock, "frontier")
	require.NoError(t, err)

	mock.ExpectQuery("DELETE FROM frontier").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"url":"https://example.com","title":"Home"}`)))

	got, ok, err := store.Pop(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item{URL: "https://example.com", Title: "Home"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPop_EmptyTableIsNotAnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := New[item](mock, "frontier")
	require.NoError(t, err)

	mock.ExpectQuery("DELETE FROM frontier").WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.Pop(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPop_QueryFailureIsDatasetKind(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := New[item](mock, "frontier")
	require.NoError(t, err)

	mock.ExpectQuery("DELETE FROM frontier").WillReturnError(errors.New("connection refused"))

	_, _, err = store.Pop(context.Background())
	require.Error(t, err)
	require.Equal(t, spindle.KindDataset, spindle.KindOf(err))
}
