// Package store keeps a history of browsed sourcetables.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/ntripbrowser/internal/browse"
	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// ErrNotFound is returned when a snapshot id does not exist.
var ErrNotFound = eris.New("store: snapshot not found")

// Snapshot is one saved browse result.
type Snapshot struct {
	ID        string         `json:"id"`
	Caster    string         `json:"caster"`
	URL       string         `json:"url"`
	Protocol  string         `json:"protocol,omitempty"`
	Encoding  string         `json:"encoding,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
	Base      *geodesy.Point `json:"base,omitempty"`
	Streams   int            `json:"streams"`
	Casters   int            `json:"casters"`
	Networks  int            `json:"networks"`
	Skipped   int            `json:"skipped"`
	CreatedAt time.Time      `json:"created_at"`

	// Table is only loaded by GetSnapshot.
	Table *sourcetable.Table `json:"table,omitempty"`
}

// FromResult builds an unsaved snapshot of res.
func FromResult(res *browse.Result) *Snapshot {
	s := &Snapshot{
		Caster:    res.Caster,
		URL:       res.URL,
		Protocol:  res.Protocol,
		Encoding:  res.Encoding,
		FetchedAt: res.FetchedAt,
		Base:      res.Base,
		Table:     res.Table,
	}
	if s.Table == nil {
		s.Table = &sourcetable.Table{}
	}
	s.Streams = len(s.Table.Streams)
	s.Casters = len(s.Table.Casters)
	s.Networks = len(s.Table.Networks)
	s.Skipped = len(s.Table.Skipped)
	return s
}

// SnapshotFilter specifies criteria for listing snapshots.
type SnapshotFilter struct {
	Caster string    `json:"caster,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

func (f SnapshotFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store persists snapshots.
type Store interface {
	// SaveSnapshot stores s and its records, assigning ID and CreatedAt.
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	// ListSnapshots returns snapshots newest first, without tables.
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]Snapshot, error)

	Migrate(ctx context.Context) error
	Close() error
}

// recordRow is one row of snapshot_records.
type recordRow struct {
	Kind       string
	Position   int
	Name       string
	Latitude   *float64
	Longitude  *float64
	DistanceKM *float64
	Geom       []byte
}

var recordColumns = []string{"snapshot_id", "kind", "position", "name", "latitude", "longitude", "distance_km", "geom"}

// recordRows flattens the table into rows. Coordinates and geometry are
// set only for records whose position parses.
func recordRows(t *sourcetable.Table) ([]recordRow, error) {
	var rows []recordRow
	for _, k := range sourcetable.Kinds {
		located := k.FieldIndex(sourcetable.FieldLatitude) >= 0
		for i, r := range t.Of(k) {
			name, _ := r.Value(0)
			row := recordRow{Kind: k.Tag(), Position: i, Name: name}
			if d, ok := r.Distance(); ok {
				row.DistanceKM = &d
			}
			if located {
				if p, err := r.Point(); err == nil {
					lat, lon := p.Lat, p.Lon
					row.Latitude, row.Longitude = &lat, &lon
					b, err := ewkb.Marshal(p.Geom(), ewkb.NDR)
					if err != nil {
						return nil, eris.Wrapf(err, "store: encode %s/%d geometry", k.Tag(), i)
					}
					row.Geom = b
				}
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
