// Package render writes parsed sourcetables as text tables and export
// formats.
package render

import (
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatTable     Format = "table"
	FormatJSON      Format = "json"
	FormatYAML      Format = "yaml"
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatCSV, FormatXLSX, FormatGeoJSON, FormatShapefile}

// FormatNames returns the names of Formats.
func FormatNames() []string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return names
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", eris.Errorf("render: unknown format %q", s)
}

// Binary reports whether the format should not be written to a terminal.
func (f Format) Binary() bool { return f == FormatXLSX }

// ContentType is the media type of the format's output.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatGeoJSON:
		return "application/geo+json"
	}
	return "text/plain; charset=utf-8"
}

// ParseSections parses a comma-separated list of record tags such as
// "STR,CAS". Tags are case-insensitive; duplicates are dropped.
func ParseSections(s string) ([]sourcetable.Kind, error) {
	var out []sourcetable.Kind
	for _, tag := range strings.Split(s, ",") {
		tag = strings.ToUpper(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		k, err := sourcetable.ParseKind(tag)
		if err != nil {
			return nil, eris.Wrap(err, "render: sections")
		}
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Options controls what Write emits.
type Options struct {
	Format Format
	// Sections selects the record kinds written by the table and CSV
	// formats. Empty means streams only.
	Sections []sourcetable.Kind
}

func (o Options) sections() []sourcetable.Kind {
	if len(o.Sections) == 0 {
		return []sourcetable.Kind{sourcetable.Stream}
	}
	return o.Sections
}

// Write renders t to w. The shapefile format writes several files and is
// handled by WriteShapefiles instead.
func Write(w io.Writer, t *sourcetable.Table, opts Options) error {
	switch opts.Format {
	case FormatTable, "":
		return Table(w, t, opts.sections())
	case FormatJSON:
		return JSON(w, t)
	case FormatYAML:
		return YAML(w, t)
	case FormatCSV:
		return CSV(w, t, opts.sections())
	case FormatXLSX:
		return XLSX(w, t)
	case FormatGeoJSON:
		return GeoJSON(w, t)
	case FormatShapefile:
		return eris.New("render: shapefile output needs a file path")
	}
	return eris.Errorf("render: unknown format %q", opts.Format)
}

// JSON writes t as indented JSON.
func JSON(w io.Writer, t *sourcetable.Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return eris.Wrap(err, "render: json")
	}
	return nil
}

// YAML writes t as a YAML document with the same shape as JSON.
func YAML(w io.Writer, t *sourcetable.Table) error {
	doc := yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sourcetable.Kinds {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, r := range t.Of(k) {
			seq.Content = append(seq.Content, recordNode(r))
		}
		doc.Content = append(doc.Content, scalar(sectionKey(k)), seq)
	}
	if len(t.Skipped) > 0 {
		var skipped yaml.Node
		if err := skipped.Encode(skippedRows(t.Skipped)); err != nil {
			return eris.Wrap(err, "render: yaml skipped")
		}
		doc.Content = append(doc.Content, scalar("skipped"), &skipped)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return eris.Wrap(err, "render: yaml")
	}
	return eris.Wrap(enc.Close(), "render: yaml")
}

// recordNode keeps schema order, which a map would lose.
func recordNode(r sourcetable.Record) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range r.Fields() {
		n.Content = append(n.Content, scalar(f.Name), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Value})
	}
	if d, ok := r.Distance(); ok {
		n.Content = append(n.Content, scalar(sourcetable.FieldDistance),
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatKM(d)})
	}
	return n
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}

type skippedRow struct {
	Kind   string `yaml:"kind"`
	Index  int    `yaml:"index"`
	Field  string `yaml:"field"`
	Value  string `yaml:"value,omitempty"`
	Reason string `yaml:"reason,omitempty"`
}

func skippedRows(errs []sourcetable.CoordinateError) []skippedRow {
	rows := make([]skippedRow, len(errs))
	for i, e := range errs {
		rows[i] = skippedRow{Kind: e.Kind.Tag(), Index: e.Index, Field: e.Field, Value: e.Value}
		if e.Err != nil {
			rows[i].Reason = e.Err.Error()
		}
	}
	return rows
}

func sectionKey(k sourcetable.Kind) string {
	switch k {
	case sourcetable.Caster:
		return "casters"
	case sourcetable.Network:
		return "networks"
	}
	return "streams"
}

func formatKM(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}
