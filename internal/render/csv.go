package render

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// CSV writes the selected sections with a leading Type column and the full
// schema of each kind. Absent fields are written as empty cells.
func CSV(w io.Writer, t *sourcetable.Table, sections []sourcetable.Kind) error {
	cw := csv.NewWriter(w)
	for _, k := range sections {
		if err := cw.Write(header(k)); err != nil {
			return eris.Wrap(err, "render: csv header")
		}
		for _, r := range t.Of(k) {
			if err := cw.Write(row(r)); err != nil {
				return eris.Wrap(err, "render: csv row")
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "render: csv")
}

// header returns "Type", the schema of k and "Distance".
func header(k sourcetable.Kind) []string {
	schema := k.Schema()
	h := make([]string, 0, len(schema)+2)
	h = append(h, "Type")
	h = append(h, schema...)
	return append(h, sourcetable.FieldDistance)
}

func row(r sourcetable.Record) []string {
	schema := r.Kind().Schema()
	out := make([]string, 0, len(schema)+2)
	out = append(out, r.Kind().Tag())
	for i := range schema {
		v, _ := r.Value(i)
		out = append(out, v)
	}
	d := ""
	if km, ok := r.Distance(); ok {
		d = formatKM(km)
	}
	return append(out, d)
}
