package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ntripbrowser/internal/geodesy"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var snapshotColumns = []string{
	"id", "caster", "url", "protocol", "encoding", "fetched_at", "base_lat", "base_lon",
	"streams", "casters", "networks", "skipped", "created_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS snapshots`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	base := geodesy.Point{Lat: 50, Lon: 10}
	snap := FromResult(fixtureResult(&base))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO snapshots`).
		WithArgs(pgxmock.AnyArg(), "caster.example.org", "http://caster.example.org:2101/", "HTTP", "utf-8",
			snap.FetchedAt, pgxmock.AnyArg(), pgxmock.AnyArg(), 2, 1, 1, 1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"snapshot_records"}, recordColumns).WillReturnResult(4)
	mock.ExpectCommit()

	require.NoError(t, s.SaveSnapshot(context.Background(), snap))
	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO snapshots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"snapshot_records"}, recordColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	snap := FromResult(fixtureResult(nil))
	err := s.SaveSnapshot(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy records")
	assert.Empty(t, snap.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

	err := s.SaveSnapshot(context.Background(), FromResult(fixtureResult(nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: begin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	base := geodesy.Point{Lat: 50, Lon: 10}
	res := fixtureResult(&base)
	tableJSON, err := json.Marshal(res.Table)
	require.NoError(t, err)

	lat, lon := base.Lat, base.Lon
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM snapshots WHERE id = \$1`).
		WithArgs("snap-1").
		WillReturnRows(pgxmock.NewRows(append(snapshotColumns, "table_json")).
			AddRow("snap-1", "caster.example.org", "http://caster.example.org:2101/", "HTTP", "utf-8", res.FetchedAt,
				&lat, &lon, 2, 1, 1, 1, now, tableJSON))

	got, err := s.GetSnapshot(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.Equal(t, "snap-1", got.ID)
	require.NotNil(t, got.Base)
	assert.Equal(t, base, *got.Base)
	require.NotNil(t, got.Table)
	assert.Len(t, got.Table.Streams, 2)
	assert.Len(t, got.Table.Casters, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSnapshot_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM snapshots WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSnapshot(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSnapshots(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	since := now.Add(-time.Hour)
	mock.ExpectQuery(`SELECT .+ FROM snapshots WHERE true AND caster = \$1 AND created_at >= \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("rtk2go.com", since, 10, 20).
		WillReturnRows(pgxmock.NewRows(snapshotColumns).
			AddRow("a", "rtk2go.com", "http://rtk2go.com:2101/", "NTRIP/1.0", "windows-1252", now, nil, nil, 100, 2, 0, 0, now).
			AddRow("b", "rtk2go.com", "http://rtk2go.com:2101/", "HTTP", "utf-8", now, nil, nil, 99, 2, 0, 0, now))

	got, err := s.ListSnapshots(context.Background(), SnapshotFilter{Caster: "rtk2go.com", Since: since, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "NTRIP/1.0", got[0].Protocol)
	assert.Equal(t, 100, got[0].Streams)
	assert.Nil(t, got[0].Base)
	assert.Nil(t, got[0].Table)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSnapshots_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM snapshots WHERE true ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(snapshotColumns))

	got, err := s.ListSnapshots(context.Background(), SnapshotFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}

func TestNewPostgres_BadConnString(t *testing.T) {
	_, err := NewPostgres(context.Background(), "://bad", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}
