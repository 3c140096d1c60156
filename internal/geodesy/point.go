// Package geodesy computes surface distances between geographic coordinates.
package geodesy

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Point is a coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// ParsePoint parses a "lat,lon" pair such as "50.45,30.52".
func ParsePoint(s string) (Point, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, eris.Errorf("geodesy: point %q must be lat,lon", s)
	}
	lat, err := ParseDegrees(latStr)
	if err != nil {
		return Point{}, eris.Wrap(err, "geodesy: latitude")
	}
	lon, err := ParseDegrees(lonStr)
	if err != nil {
		return Point{}, eris.Wrap(err, "geodesy: longitude")
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// ParseDegrees parses a decimal-degree value. Surrounding whitespace is
// ignored; NaN and infinities are rejected.
func ParseDegrees(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "geodesy: parse degrees %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("geodesy: degrees %q not finite", s)
	}
	return v, nil
}

// Geom returns the point as a 2D go-geom point (x=lon, y=lat) in EPSG:4326.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(4326)
}

// String formats the point as "lat,lon".
func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}
