// Package geo converts source-specific projected coordinates into WGS84
// latitude/longitude and handles the per-source axis-order quirks. Conversion
// failures never surface to scrapers as errors; they resolve to absent
// coordinates so extraction continues.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

// Order declares which axis comes first in a coordinate pair. Most sources
// report lon-first, but a few (Baden-Württemberg's INSPIRE payload, the
// Mecklenburg-Vorpommern gml:pos) are lat-first. This is per-source
// configuration, never a global default.
type Order int

const (
	// LonLat is the GeoJSON convention: x/longitude first.
	LonLat Order = iota
	// LatLon is the inverted convention some sources use.
	LatLon
)

// Split returns the pair (a, b) as (lat, lon) according to the order.
func (o Order) Split(a, b float64) (lat, lon float64) {
	if o == LatLon {
		return a, b
	}
	return b, a
}

// Plausible geographic bounds for Germany, with margin. Converted points
// outside this window are treated as conversion failures.
const (
	minLat = 47.0
	maxLat = 55.5
	minLon = 5.0
	maxLon = 16.0
)

// InGermany reports whether the coordinates fall within plausible bounds.
func InGermany(lat, lon float64) bool {
	return lat >= minLat && lat <= maxLat && lon >= minLon && lon <= maxLon
}

var (
	utm32ToLonLat = wgs84.ETRS89UTM(32).To(wgs84.LonLat())
	utm33ToLonLat = wgs84.ETRS89UTM(33).To(wgs84.LonLat())
)

// ToWGS84 converts a projected (x, y) pair in the given EPSG code to
// geographic latitude/longitude. EPSG:4326 passes through (x is longitude,
// y is latitude).
func ToWGS84(x, y float64, epsg int) (lat, lon float64, err error) {
	switch epsg {
	case 4326:
		return y, x, nil
	case 25832:
		lon, lat, _ = utm32ToLonLat(x, y, 0)
		return lat, lon, nil
	case 25833:
		lon, lat, _ = utm33ToLonLat(x, y, 0)
		return lat, lon, nil
	default:
		return 0, 0, eris.Errorf("geo: unsupported EPSG code %d", epsg)
	}
}

// Point converts a projected pair and validates the result, returning nil
// pointers if the conversion fails or the result is implausible.
func Point(x, y float64, epsg int) (lat, lon *float64) {
	la, lo, err := ToWGS84(x, y, epsg)
	if err != nil {
		return nil, nil
	}
	return Pair(la, lo)
}

// PointStrings parses string coordinates and converts them. Empty or
// malformed values yield absent coordinates.
func PointStrings(x, y string, epsg int) (lat, lon *float64) {
	xf, err := parseFloat(x)
	if err != nil {
		return nil, nil
	}
	yf, err := parseFloat(y)
	if err != nil {
		return nil, nil
	}
	return Point(xf, yf, epsg)
}

// Pair validates an already-geographic pair, returning nil pointers for NaN,
// infinite, or out-of-bounds values.
func Pair(lat, lon float64) (*float64, *float64) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return nil, nil
	}
	if !InGermany(lat, lon) {
		return nil, nil
	}
	return &lat, &lon
}

// ParseEPSG extracts the numeric code from strings like "EPSG:25832" or
// "25832". The fallback is returned for empty or unparseable input, which
// covers sources that publish a literal "null" in their CRS column.
func ParseEPSG(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if cut, ok := strings.CutPrefix(strings.ToUpper(s), "EPSG:"); ok {
		s = cut
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return fallback
	}
	return code
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	// German sources occasionally use a decimal comma.
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}
