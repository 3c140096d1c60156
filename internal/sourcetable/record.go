package sourcetable

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ntripbrowser/internal/geodesy"
)

// Field is a named value of a record.
type Field struct {
	Name  string
	Value string
}

// Record is one parsed sourcetable line. Values are positional against the
// kind's schema; a record may carry fewer values than the schema has names,
// in which case the trailing fields are absent rather than empty.
type Record struct {
	kind        Kind
	values      []string
	distance    float64
	hasDistance bool
}

// NewRecord builds a record of kind k from positional values. Values beyond
// the schema length are dropped.
func NewRecord(k Kind, values []string) Record {
	n := min(len(values), len(k.Schema()))
	v := make([]string, n)
	copy(v, values[:n])
	return Record{kind: k, values: v}
}

// Kind returns the record kind.
func (r Record) Kind() Kind { return r.kind }

// Len returns the number of present fields, excluding Distance.
func (r Record) Len() int { return len(r.values) }

// Value returns the i-th positional value.
func (r Record) Value(i int) (string, bool) {
	if i < 0 || i >= len(r.values) {
		return "", false
	}
	return r.values[i], true
}

// Field returns the value of the named field and whether it is present.
func (r Record) Field(name string) (string, bool) {
	return r.Value(r.kind.FieldIndex(name))
}

// Get returns the named field or "" when absent.
func (r Record) Get(name string) string {
	v, _ := r.Field(name)
	return v
}

// Fields returns the present fields in schema order.
func (r Record) Fields() []Field {
	schema := r.kind.Schema()
	out := make([]Field, len(r.values))
	for i, v := range r.values {
		out[i] = Field{Name: schema[i], Value: v}
	}
	return out
}

// Values returns a copy of the positional values.
func (r Record) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

// Distance returns the distance to the base point in kilometers, if one was
// computed.
func (r Record) Distance() (float64, bool) {
	return r.distance, r.hasDistance
}

// WithDistance returns a copy of r carrying km as its distance.
func (r Record) WithDistance(km float64) Record {
	r.distance = km
	r.hasDistance = true
	return r
}

// Point parses the record's Latitude and Longitude fields.
func (r Record) Point() (geodesy.Point, error) {
	lat, err := r.degrees(FieldLatitude)
	if err != nil {
		return geodesy.Point{}, err
	}
	lon, err := r.degrees(FieldLongitude)
	if err != nil {
		return geodesy.Point{}, err
	}
	return geodesy.Point{Lat: lat, Lon: lon}, nil
}

func (r Record) degrees(name string) (float64, error) {
	if r.kind.FieldIndex(name) < 0 {
		return 0, &CoordinateError{Kind: r.kind, Field: name, Err: ErrNoCoordinate}
	}
	raw, ok := r.Field(name)
	if !ok {
		return 0, &CoordinateError{Kind: r.kind, Field: name, Err: ErrNoCoordinate}
	}
	v, err := geodesy.ParseDegrees(raw)
	if err != nil {
		return 0, &CoordinateError{Kind: r.kind, Field: name, Value: raw, Err: err}
	}
	return v, nil
}

// MarshalJSON encodes the record as an object of its present fields in
// schema order, followed by Distance when set.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONPair(&buf, f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	if r.hasDistance {
		if len(r.values) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"` + FieldDistance + `":`)
		buf.WriteString(strconv.FormatFloat(r.distance, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONPair(buf *bytes.Buffer, key, value string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return eris.Wrap(err, "sourcetable: marshal key")
	}
	v, err := json.Marshal(value)
	if err != nil {
		return eris.Wrap(err, "sourcetable: marshal value")
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// decodeRecord rebuilds a record of kind k from its JSON object form.
// Present fields are taken as the longest schema prefix found in obj.
func decodeRecord(k Kind, obj map[string]json.RawMessage) (Record, error) {
	var values []string
	for _, name := range k.Schema() {
		raw, ok := obj[name]
		if !ok {
			break
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Record{}, eris.Wrapf(err, "sourcetable: decode %s field %q", k, name)
		}
		values = append(values, s)
	}
	r := NewRecord(k, values)
	if raw, ok := obj[FieldDistance]; ok {
		var d float64
		if err := json.Unmarshal(raw, &d); err != nil {
			return Record{}, eris.Wrapf(err, "sourcetable: decode %s distance", k)
		}
		r = r.WithDistance(d)
	}
	return r, nil
}
