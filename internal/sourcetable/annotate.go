package sourcetable

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/sells-group/ntripbrowser/internal/geodesy"
)

// ErrNoCoordinate marks a record without a latitude or longitude field.
var ErrNoCoordinate = errors.New("coordinate field absent")

// CoordinateError explains why a record was left without a distance.
type CoordinateError struct {
	Kind  Kind   `json:"kind"`
	Index int    `json:"index"`
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
	Err   error  `json:"-"`
}

func (e *CoordinateError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s record %d: %s: %v", e.Kind, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("%s record %d: %s %q: %v", e.Kind, e.Index, e.Field, e.Value, e.Err)
}

func (e *CoordinateError) Unwrap() error { return e.Err }

type coordinateErrorJSON struct {
	Kind   Kind   `json:"kind"`
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON includes the cause as a reason string.
func (e CoordinateError) MarshalJSON() ([]byte, error) {
	out := coordinateErrorJSON{Kind: e.Kind, Index: e.Index, Field: e.Field, Value: e.Value}
	if e.Err != nil {
		out.Reason = e.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the reason as an opaque error.
func (e *CoordinateError) UnmarshalJSON(data []byte) error {
	var in coordinateErrorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = CoordinateError{Kind: in.Kind, Index: in.Index, Field: in.Field, Value: in.Value}
	if in.Reason != "" {
		e.Err = errors.New(in.Reason)
	}
	return nil
}

// Annotate sets the distance from base on every record whose coordinates
// parse. Records that cannot be located are left untouched and reported.
func Annotate(records []Record, base geodesy.Point) []CoordinateError {
	var skipped []CoordinateError
	for i := range records {
		p, err := records[i].Point()
		if err != nil {
			ce := CoordinateError{Kind: records[i].kind, Index: i, Err: err}
			var inner *CoordinateError
			if errors.As(err, &inner) {
				ce.Field, ce.Value, ce.Err = inner.Field, inner.Value, inner.Err
			}
			skipped = append(skipped, ce)
			continue
		}
		km := geodesy.Distance(base, p)
		if math.IsNaN(km) {
			skipped = append(skipped, CoordinateError{
				Kind:  records[i].kind,
				Index: i,
				Field: FieldLatitude,
				Value: records[i].Get(FieldLatitude),
				Err:   errors.New("distance undefined"),
			})
			continue
		}
		records[i] = records[i].WithDistance(km)
	}
	return skipped
}
