package render

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// GeoJSON writes every record with usable coordinates as a Point feature.
// Feature properties hold the record fields plus "type" and, when set,
// "Distance". Records without coordinates are left out.
func GeoJSON(w io.Writer, t *sourcetable.Table) error {
	fc := geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, k := range sourcetable.Kinds {
		for i, r := range t.Of(k) {
			p, err := r.Point()
			if err != nil {
				continue
			}
			props := make(map[string]interface{}, r.Len()+2)
			props["type"] = k.Tag()
			for _, f := range r.Fields() {
				props[f.Name] = f.Value
			}
			if d, ok := r.Distance(); ok {
				props[sourcetable.FieldDistance] = d
			}
			fc.Features = append(fc.Features, &geojson.Feature{
				ID:         featureID(k, i, r),
				Geometry:   p.Geom(),
				Properties: props,
			})
		}
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "render: geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "render: geojson write")
	}
	return nil
}

func featureID(k sourcetable.Kind, i int, r sourcetable.Record) string {
	name, _ := r.Value(0)
	if name == "" {
		return k.Tag() + "/" + strconv.Itoa(i)
	}
	return k.Tag() + "/" + name
}
