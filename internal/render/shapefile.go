package render

import (
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

const (
	dbfNameLen     = 10
	dbfStringWidth = 254
	distanceField  = "DIST_KM"
)

// WriteShapefiles writes one point shapefile per located kind, named
// <base>_<TAG>.shp with its .shx and .dbf siblings. Kinds without any
// located record are skipped. The paths of the written .shp files are
// returned.
func WriteShapefiles(base string, t *sourcetable.Table) ([]string, error) {
	base = strings.TrimSuffix(base, ".shp")
	var written []string
	for _, k := range sourcetable.Kinds {
		if k.FieldIndex(sourcetable.FieldLatitude) < 0 {
			continue
		}
		path := base + "_" + k.Tag() + ".shp"
		n, err := writeShapefile(path, k, t.Of(k))
		if err != nil {
			return written, err
		}
		if n == 0 {
			continue
		}
		written = append(written, path)
	}
	return written, nil
}

func writeShapefile(path string, k sourcetable.Kind, records []sourcetable.Record) (int, error) {
	type located struct {
		rec   sourcetable.Record
		point *shp.Point
	}
	var rows []located
	for _, r := range records {
		p, err := r.Point()
		if err != nil {
			continue
		}
		rows = append(rows, located{rec: r, point: &shp.Point{X: p.Lon, Y: p.Lat}})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return 0, eris.Wrapf(err, "render: create shapefile %s", path)
	}

	schema := k.Schema()
	names := dbfNames(schema)
	fields := make([]shp.Field, 0, len(schema)+1)
	for _, n := range names {
		fields = append(fields, shp.StringField(n, dbfStringWidth))
	}
	fields = append(fields, shp.FloatField(distanceField, 16, 3))
	if err := w.SetFields(fields); err != nil {
		_ = closeShapefile(w, path)
		return 0, eris.Wrapf(err, "render: shapefile fields %s", path)
	}

	for _, row := range rows {
		idx := int(w.Write(row.point))
		for i := range schema {
			v, _ := row.rec.Value(i)
			if err := w.WriteAttribute(idx, i, dbfValue(v)); err != nil {
				_ = closeShapefile(w, path)
				return 0, eris.Wrapf(err, "render: shapefile attribute %s", names[i])
			}
		}
		if d, ok := row.rec.Distance(); ok {
			if err := w.WriteAttribute(idx, len(schema), d); err != nil {
				_ = closeShapefile(w, path)
				return 0, eris.Wrap(err, "render: shapefile distance")
			}
		}
	}

	if err := closeShapefile(w, path); err != nil {
		return 0, err
	}
	zap.L().Debug("wrote shapefile", zap.String("path", path), zap.Stringer("kind", k), zap.Int("records", len(rows)))
	return len(rows), nil
}

// closeShapefile writes the headers and gives the attribute table its
// .dbf name. go-shp creates it as <stem>dbf, without the dot.
func closeShapefile(w *shp.Writer, path string) error {
	w.Close()
	stem := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(stem+"dbf", stem+".dbf"); err != nil {
		return eris.Wrapf(err, "render: rename dbf %s", stem)
	}
	return nil
}

// dbfNames maps schema names to unique upper-case DBF column names of at
// most ten characters.
func dbfNames(schema []string) []string {
	seen := make(map[string]bool, len(schema))
	out := make([]string, len(schema))
	for i, name := range schema {
		var b strings.Builder
		for _, r := range name {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(unicode.ToUpper(r))
			}
		}
		n := b.String()
		if len(n) > dbfNameLen {
			n = n[:dbfNameLen]
		}
		for j := 1; seen[n]; j++ {
			suffix := string(rune('0' + j%10))
			n = n[:min(len(n), dbfNameLen-1)] + suffix
		}
		seen[n] = true
		out[i] = n
	}
	return out
}

// dbfValue keeps attribute text within the DBF column width without
// splitting a UTF-8 sequence.
func dbfValue(v string) string {
	if len(v) <= dbfStringWidth {
		return v
	}
	n := dbfStringWidth
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}
