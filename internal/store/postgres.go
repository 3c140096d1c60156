package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ntripbrowser/internal/db"
	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// geom holds EWKB (SRID 4326) so the table loads without PostGIS;
// ST_GeomFromEWKB(geom) converts it where the extension exists.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	caster     TEXT NOT NULL,
	url        TEXT NOT NULL,
	protocol   TEXT NOT NULL DEFAULT '',
	encoding   TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL,
	base_lat   DOUBLE PRECISION,
	base_lon   DOUBLE PRECISION,
	streams    INTEGER NOT NULL DEFAULT 0,
	casters    INTEGER NOT NULL DEFAULT 0,
	networks   INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0,
	table_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshot_records (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	distance_km DOUBLE PRECISION,
	geom        BYTEA,
	PRIMARY KEY (snapshot_id, kind, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_caster ON snapshots(caster);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshot_records_name ON snapshot_records(name);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	table := tableOrEmpty(snap.Table)
	tableJSON, err := json.Marshal(table)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal table")
	}
	records, err := recordRows(table)
	if err != nil {
		return err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	baseLat, baseLon := basePtrs(snap.Base)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO snapshots (id, caster, url, protocol, encoding, fetched_at, base_lat, base_lon, streams, casters, networks, skipped, table_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, snap.Caster, snap.URL, snap.Protocol, snap.Encoding, snap.FetchedAt.UTC(),
		baseLat, baseLon, snap.Streams, snap.Casters, snap.Networks, snap.Skipped,
		tableJSON, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert snapshot")
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{id, r.Kind, r.Position, r.Name, r.Latitude, r.Longitude, r.DistanceKM, r.Geom})
	}
	if _, err := db.CopyFrom(ctx, tx, "snapshot_records", recordColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: copy records")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit snapshot")
	}
	snap.ID = id
	snap.CreatedAt = now
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var tableJSON []byte
	snap, err := scanPgSnapshot(s.pool.QueryRow(ctx,
		`SELECT id, caster, url, protocol, encoding, fetched_at, base_lat, base_lon, streams, casters, networks, skipped, created_at, table_json
		 FROM snapshots WHERE id = $1`,
		id,
	), &tableJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get snapshot %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", id)
	}

	snap.Table = &sourcetable.Table{}
	if err := json.Unmarshal(tableJSON, snap.Table); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal table")
	}
	return snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]Snapshot, error) {
	query := `SELECT id, caster, url, protocol, encoding, fetched_at, base_lat, base_lon, streams, casters, networks, skipped, created_at
		FROM snapshots WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Caster != "" {
		query += fmt.Sprintf(` AND caster = $%d`, argIdx)
		args = append(args, filter.Caster)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanPgSnapshot(rows, nil)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

func scanPgSnapshot(row scannable, tableJSON *[]byte) (*Snapshot, error) {
	var snap Snapshot
	var baseLat, baseLon *float64
	dest := []any{
		&snap.ID, &snap.Caster, &snap.URL, &snap.Protocol, &snap.Encoding, &snap.FetchedAt,
		&baseLat, &baseLon, &snap.Streams, &snap.Casters, &snap.Networks, &snap.Skipped, &snap.CreatedAt,
	}
	if tableJSON != nil {
		dest = append(dest, tableJSON)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if baseLat != nil && baseLon != nil {
		snap.Base = &geodesy.Point{Lat: *baseLat, Lon: *baseLon}
	}
	return &snap, nil
}
