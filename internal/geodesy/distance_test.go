package geodesy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	newport   = Point{Lat: 41.49008, Lon: -71.312796}
	cleveland = Point{Lat: 41.499498, Lon: -81.695391}
)

func TestVincenty_KnownDistances(t *testing.T) {
	tests := []struct {
		name   string
		p, q   Point
		meters float64
		delta  float64
	}{
		{
			name:   "newport to cleveland",
			p:      newport,
			q:      cleveland,
			meters: 866455.4329,
			delta:  1,
		},
		{
			name:   "flinders peak to buninyong",
			p:      Point{Lat: -37.95103342, Lon: 144.42486789},
			q:      Point{Lat: -37.65282114, Lon: 143.92649554},
			meters: 54972.271,
			delta:  0.01,
		},
		{
			name:   "one degree along the equator",
			p:      Point{Lat: 0, Lon: 0},
			q:      Point{Lat: 0, Lon: 1},
			meters: 111319.491,
			delta:  0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Vincenty(tt.p, tt.q)
			require.NoError(t, err)
			assert.InDelta(t, tt.meters, got, tt.delta)
		})
	}
}

func TestDistance_ZeroAtIdenticalPoints(t *testing.T) {
	for _, p := range []Point{{}, newport, {Lat: 89.9, Lon: 179.9}, {Lat: -45, Lon: -120}} {
		assert.Zero(t, Distance(p, p), "distance(%v, %v)", p, p)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	assert.InDelta(t, Distance(newport, cleveland), Distance(cleveland, newport), 1e-9)
	assert.InDelta(t, 866.455, Distance(newport, cleveland), 0.01)
}

func TestVincenty_NearAntipodalFallsBack(t *testing.T) {
	p := Point{Lat: 0, Lon: 0}
	q := Point{Lat: 0.5, Lon: 179.7}

	_, err := Vincenty(p, q)
	require.ErrorIs(t, err, ErrNoConvergence)

	km := Distance(p, q)
	assert.InDelta(t, Haversine(p, q), km, 1e-9)
	assert.Greater(t, km, 19900.0)
}

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 864.21, Haversine(newport, cleveland), 0.05)
	assert.Zero(t, Haversine(newport, newport))
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("50.45, 30.52")
	require.NoError(t, err)
	assert.Equal(t, Point{Lat: 50.45, Lon: 30.52}, p)
	assert.Equal(t, "50.45,30.52", p.String())

	for _, bad := range []string{"", "50.45", "abc,30", "50,xyz", "NaN,1", "1,+Inf"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestPointGeom(t *testing.T) {
	g := Point{Lat: 40, Lon: -105}.Geom()
	assert.Equal(t, 4326, g.SRID())
	assert.Equal(t, []float64{-105, 40}, g.FlatCoords())
}
