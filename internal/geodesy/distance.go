package geodesy

import (
	"errors"
	"math"
)

// WGS-84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = (1 - wgs84F) * wgs84A
)

// MeanEarthRadiusKM is the IUGG mean radius used by the spherical fallback.
const MeanEarthRadiusKM = 6371.0088

const (
	vincentyMaxIter   = 200
	vincentyTolerance = 1e-12
)

// ErrNoConvergence is returned by Vincenty when the iteration fails to
// settle, which happens for nearly antipodal points.
var ErrNoConvergence = errors.New("geodesy: vincenty did not converge")

// Distance returns the geodesic distance between p and q in kilometers.
// It uses Vincenty's inverse formula on the WGS-84 ellipsoid and falls back
// to the great-circle distance when Vincenty does not converge.
func Distance(p, q Point) float64 {
	m, err := Vincenty(p, q)
	if err != nil {
		return Haversine(p, q)
	}
	return m / 1000
}

// Vincenty returns the ellipsoidal distance between p and q in meters.
func Vincenty(p, q Point) (float64, error) {
	if p == q {
		return 0, nil
	}

	l := radians(q.Lon - p.Lon)
	u1 := math.Atan((1 - wgs84F) * math.Tan(radians(p.Lat)))
	u2 := math.Atan((1 - wgs84F) * math.Tan(radians(q.Lat)))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := l
	var sinSigma, cosSigma, sigma, cos2Alpha, cos2SigmaM float64
	converged := false

	for range vincentyMaxIter {
		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma = math.Hypot(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
		if sinSigma == 0 {
			return 0, nil
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cos2Alpha = 1 - sinAlpha*sinAlpha
		if cos2Alpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cos2Alpha
		} else {
			// equatorial line
			cos2SigmaM = 0
		}
		c := wgs84F / 16 * cos2Alpha * (4 + wgs84F*(4-3*cos2Alpha))
		prev := lambda
		lambda = l + (1-c)*wgs84F*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < vincentyTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return 0, ErrNoConvergence
	}

	uSq := cos2Alpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	a := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	b := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := b * sinSigma * (cos2SigmaM + b/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		b/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * a * (sigma - deltaSigma), nil
}

// Haversine returns the great-circle distance between p and q in kilometers
// on a sphere of MeanEarthRadiusKM.
func Haversine(p, q Point) float64 {
	lat1, lat2 := radians(p.Lat), radians(q.Lat)
	dLat := lat2 - lat1
	dLon := radians(q.Lon - p.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return MeanEarthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
