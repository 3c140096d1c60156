package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	caster     TEXT NOT NULL,
	url        TEXT NOT NULL,
	protocol   TEXT NOT NULL DEFAULT '',
	encoding   TEXT NOT NULL DEFAULT '',
	fetched_at DATETIME NOT NULL,
	base_lat   REAL,
	base_lon   REAL,
	streams    INTEGER NOT NULL DEFAULT 0,
	casters    INTEGER NOT NULL DEFAULT 0,
	networks   INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0,
	table_json TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS snapshot_records (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	latitude    REAL,
	longitude   REAL,
	distance_km REAL,
	geom        BLOB,
	PRIMARY KEY (snapshot_id, kind, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_caster ON snapshots(caster);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
CREATE INDEX IF NOT EXISTS idx_snapshot_records_name ON snapshot_records(name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	table := tableOrEmpty(snap.Table)
	tableJSON, err := json.Marshal(table)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal table")
	}
	rows, err := recordRows(table)
	if err != nil {
		return err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	baseLat, baseLon := basePtrs(snap.Base)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, caster, url, protocol, encoding, fetched_at, base_lat, base_lon, streams, casters, networks, skipped, table_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, snap.Caster, snap.URL, snap.Protocol, snap.Encoding, snap.FetchedAt.UTC(),
		baseLat, baseLon, snap.Streams, snap.Casters, snap.Networks, snap.Skipped,
		string(tableJSON), now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_records (snapshot_id, kind, position, name, latitude, longitude, distance_km, geom)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, id, r.Kind, r.Position, r.Name, r.Latitude, r.Longitude, r.DistanceKM, r.Geom); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s/%d", r.Kind, r.Position)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit snapshot")
	}
	snap.ID = id
	snap.CreatedAt = now
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, caster, url, protocol, encoding, fetched_at, base_lat, base_lon, streams, casters, networks, skipped, created_at, table_json
		 FROM snapshots WHERE id = ?`,
		id,
	)

	var tableJSON string
	snap, err := scanSnapshot(row, &tableJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get snapshot %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", id)
	}

	snap.Table = &sourcetable.Table{}
	if err := json.Unmarshal([]byte(tableJSON), snap.Table); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal table")
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]Snapshot, error) {
	query := `SELECT id, caster, url, protocol, encoding, fetched_at, base_lat, base_lon, streams, casters, networks, skipped, created_at
		FROM snapshots WHERE 1=1`
	var args []any

	if filter.Caster != "" {
		query += ` AND caster = ?`
		args = append(args, filter.Caster)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, nil)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

// scanSnapshot scans the common snapshot columns, plus table_json when
// tableJSON is non-nil.
func scanSnapshot(row scannable, tableJSON *string) (*Snapshot, error) {
	var snap Snapshot
	var baseLat, baseLon sql.NullFloat64
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
	if baseLat.Valid && baseLon.Valid {
		snap.Base = &geodesy.Point{Lat: baseLat.Float64, Lon: baseLon.Float64}
	}
	return &snap, nil
}

func basePtrs(p *geodesy.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lon := p.Lat, p.Lon
	return &lat, &lon
}

func tableOrEmpty(t *sourcetable.Table) *sourcetable.Table {
	if t == nil {
		return &sourcetable.Table{}
	}
	return t
}
