package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// tableColumns are the fields shown per kind in text output.
var tableColumns = map[sourcetable.Kind][]string{
	sourcetable.Stream: {
		"Mountpoint", "ID", "Format", "Nav-System", "Network", "Country",
		sourcetable.FieldLatitude, sourcetable.FieldLongitude, "Authentication", "Bitrate",
	},
	sourcetable.Caster: {
		"Host", "Port", "ID", "Operator", "Country",
		sourcetable.FieldLatitude, sourcetable.FieldLongitude, "Site",
	},
	sourcetable.Network: {
		"ID", "Operator", "Authentication", "Fee", "Web-Net",
	},
}

const maxCell = 32

// Table writes one aligned text table per section.
func Table(out io.Writer, t *sourcetable.Table, sections []sourcetable.Kind) error {
	for i, k := range sections {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
		}
		if err := section(out, k, t.Of(k)); err != nil {
			return err
		}
	}
	return nil
}

func section(out io.Writer, k sourcetable.Kind, records []sourcetable.Record) error {
	if _, err := fmt.Fprintf(out, "%s (%d)\n", k.Tag(), len(records)); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	cols := tableColumns[k]
	withDistance := false
	for _, r := range records {
		if _, ok := r.Distance(); ok {
			withDistance = true
			break
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := make([]string, 0, len(cols)+1)
	rule := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		header = append(header, strings.ToUpper(c))
		rule = append(rule, strings.Repeat("-", len(c)))
	}
	if withDistance {
		header = append(header, "DISTANCE_KM")
		rule = append(rule, strings.Repeat("-", len("DISTANCE_KM")))
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	_, _ = fmt.Fprintln(w, strings.Join(rule, "\t"))

	row := make([]string, 0, len(header))
	for _, r := range records {
		row = row[:0]
		for _, c := range cols {
			row = append(row, truncate(r.Get(c)))
		}
		if withDistance {
			d := ""
			if km, ok := r.Distance(); ok {
				d = fmt.Sprintf("%.1f", km)
			}
			row = append(row, d)
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// truncate shortens s to maxCell runes and removes tabs that would break
// column alignment.
func truncate(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	r := []rune(s)
	if len(r) > maxCell {
		return string(r[:maxCell-3]) + "..."
	}
	return s
}
