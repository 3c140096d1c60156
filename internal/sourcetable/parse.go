package sourcetable

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/geodesy"
)

// Table is a parsed sourcetable.
type Table struct {
	Streams  []Record
	Casters  []Record
	Networks []Record

	// Skipped lists records left without a distance because their
	// coordinates were missing or malformed. Empty when no base point was
	// supplied.
	Skipped []CoordinateError
}

// Of returns the records of kind k.
func (t *Table) Of(k Kind) []Record {
	switch k {
	case Stream:
		return t.Streams
	case Caster:
		return t.Casters
	case Network:
		return t.Networks
	}
	return nil
}

// Len returns the total number of records across kinds.
func (t *Table) Len() int {
	return len(t.Streams) + len(t.Casters) + len(t.Networks)
}

// Counts returns the number of records per kind.
func (t *Table) Counts() map[Kind]int {
	return map[Kind]int{
		Stream:  len(t.Streams),
		Caster:  len(t.Casters),
		Network: len(t.Networks),
	}
}

type options struct {
	base *geodesy.Point
}

// Option configures Parse.
type Option func(*options)

// WithBasePoint enables distance annotation relative to p.
func WithBasePoint(p geodesy.Point) Option {
	return func(o *options) {
		o.base = &p
	}
}

// Parse crops, classifies and maps text into a Table, annotating distances
// when a base point is given. It never fails: text without any tagged line
// yields an empty table.
func Parse(text string, opts ...Option) *Table {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lines := Classify(Crop(text))
	t := &Table{
		Streams:  MapRecords(Stream, lines.Streams),
		Casters:  MapRecords(Caster, lines.Casters),
		Networks: MapRecords(Network, lines.Networks),
	}

	if o.base != nil {
		for _, k := range Kinds {
			if k.FieldIndex(FieldLatitude) < 0 {
				continue
			}
			t.Skipped = append(t.Skipped, Annotate(t.Of(k), *o.base)...)
		}
	}

	log := zap.L().With(zap.String("component", "sourcetable"))
	for _, s := range t.Skipped {
		log.Debug("record without distance", zap.Stringer("kind", s.Kind), zap.Int("index", s.Index), zap.Error(s.Err))
	}
	log.Debug("parsed sourcetable",
		zap.Int("streams", len(t.Streams)),
		zap.Int("casters", len(t.Casters)),
		zap.Int("networks", len(t.Networks)),
		zap.Int("skipped", len(t.Skipped)),
	)
	return t
}

type tableJSON struct {
	Streams  []Record          `json:"streams"`
	Casters  []Record          `json:"casters"`
	Networks []Record          `json:"networks"`
	Skipped  []CoordinateError `json:"skipped,omitempty"`
}

// MarshalJSON encodes the table with lower-case section keys. Empty
// sections encode as [] rather than null.
func (t *Table) MarshalJSON() ([]byte, error) {
	nonNil := func(r []Record) []Record {
		if r == nil {
			return []Record{}
		}
		return r
	}
	return json.Marshal(tableJSON{
		Streams:  nonNil(t.Streams),
		Casters:  nonNil(t.Casters),
		Networks: nonNil(t.Networks),
		Skipped:  t.Skipped,
	})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Streams  []map[string]json.RawMessage `json:"streams"`
		Casters  []map[string]json.RawMessage `json:"casters"`
		Networks []map[string]json.RawMessage `json:"networks"`
		Skipped  []CoordinateError            `json:"skipped"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "sourcetable: decode table")
	}

	decode := func(k Kind, objs []map[string]json.RawMessage) ([]Record, error) {
		if len(objs) == 0 {
			return nil, nil
		}
		out := make([]Record, 0, len(objs))
		for _, obj := range objs {
			r, err := decodeRecord(k, obj)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}

	var err error
	if t.Streams, err = decode(Stream, raw.Streams); err != nil {
		return err
	}
	if t.Casters, err = decode(Caster, raw.Casters); err != nil {
		return err
	}
	if t.Networks, err = decode(Network, raw.Networks); err != nil {
		return err
	}
	t.Skipped = raw.Skipped
	return nil
}
