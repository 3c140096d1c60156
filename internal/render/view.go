package render

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// SortDistance orders records by ascending distance.
const SortDistance = "distance"

// View narrows and orders a table before it is written.
type View struct {
	// MaxDistance drops records farther than this many kilometres, and
	// records without a distance. Zero keeps everything.
	MaxDistance float64
	// SortBy is SortDistance, a field name of the record schema, or empty
	// to keep sourcetable order.
	SortBy string
}

// Validate checks the view against the record schemas.
func (v View) Validate() error {
	if v.MaxDistance < 0 {
		return eris.Errorf("render: negative max distance %g", v.MaxDistance)
	}
	if v.SortBy == "" || strings.EqualFold(v.SortBy, SortDistance) {
		return nil
	}
	for _, k := range sourcetable.Kinds {
		if k.FieldIndex(v.SortBy) >= 0 {
			return nil
		}
	}
	return eris.Errorf("render: unknown sort field %q", v.SortBy)
}

// Apply returns a filtered and sorted copy of t. The input is not modified.
// Skipped indices count records in sourcetable order, so they are only
// carried over when the view neither filters nor sorts.
func (v View) Apply(t *sourcetable.Table) *sourcetable.Table {
	out := &sourcetable.Table{}
	if v.SortBy == "" && v.MaxDistance <= 0 {
		out.Skipped = t.Skipped
	}
	out.Streams = v.apply(t.Streams)
	out.Casters = v.apply(t.Casters)
	out.Networks = v.apply(t.Networks)
	return out
}

func (v View) apply(records []sourcetable.Record) []sourcetable.Record {
	if records == nil {
		return nil
	}
	out := make([]sourcetable.Record, 0, len(records))
	for _, r := range records {
		if v.MaxDistance > 0 {
			d, ok := r.Distance()
			if !ok || d > v.MaxDistance {
				continue
			}
		}
		out = append(out, r)
	}

	switch {
	case v.SortBy == "":
	case strings.EqualFold(v.SortBy, SortDistance):
		slices.SortStableFunc(out, compareDistance)
	default:
		field := v.SortBy
		slices.SortStableFunc(out, func(a, b sourcetable.Record) int {
			return cmp.Compare(a.Get(field), b.Get(field))
		})
	}
	return out
}

// compareDistance orders located records first, nearest first.
func compareDistance(a, b sourcetable.Record) int {
	da, oka := a.Distance()
	db, okb := b.Distance()
	switch {
	case oka && okb:
		return cmp.Compare(da, db)
	case oka:
		return -1
	case okb:
		return 1
	}
	return 0
}
