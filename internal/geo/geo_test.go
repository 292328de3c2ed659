package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToWGS84Identity(t *testing.T) {
	lat, lon, err := ToWGS84(13.404954, 52.520008, 4326)
	require.NoError(t, err)
	assert.Equal(t, 52.520008, lat)
	assert.Equal(t, 13.404954, lon)
}

func TestToWGS84UTM32(t *testing.T) {
	// Easting 500000 sits exactly on the zone 32 central meridian (9°E);
	// the northing corresponds to 51°N.
	lat, lon, err := ToWGS84(500000, 5649824.7, 25832)
	require.NoError(t, err)
	assert.InDelta(t, 51.0, lat, 0.001)
	assert.InDelta(t, 9.0, lon, 0.001)
}

func TestToWGS84UTM33(t *testing.T) {
	lat, lon, err := ToWGS84(500000, 5649824.7, 25833)
	require.NoError(t, err)
	assert.InDelta(t, 51.0, lat, 0.001)
	assert.InDelta(t, 15.0, lon, 0.001)
}

func TestToWGS84UnsupportedCode(t *testing.T) {
	_, _, err := ToWGS84(1, 2, 9999)
	assert.Error(t, err)
}

func TestPointRejectsImplausible(t *testing.T) {
	// A zero UTM pair converts far outside Germany.
	lat, lon := Point(0, 0, 25832)
	assert.Nil(t, lat)
	assert.Nil(t, lon)

	lat, lon = Point(500000, 5649824.7, 25832)
	require.NotNil(t, lat)
	require.NotNil(t, lon)
	assert.InDelta(t, 51.0, *lat, 0.001)
}

func TestPointStrings(t *testing.T) {
	lat, lon := PointStrings("500000", "5649824.7", 25832)
	require.NotNil(t, lat)
	require.NotNil(t, lon)
	assert.InDelta(t, 9.0, *lon, 0.001)

	lat, lon = PointStrings("", "5649824.7", 25832)
	assert.Nil(t, lat)
	assert.Nil(t, lon)

	lat, lon = PointStrings("abc", "def", 25832)
	assert.Nil(t, lat)
	assert.Nil(t, lon)
}

func TestPairBounds(t *testing.T) {
	lat, lon := Pair(52.52, 13.40)
	require.NotNil(t, lat)
	assert.Equal(t, 52.52, *lat)
	assert.Equal(t, 13.40, *lon)

	lat, lon = Pair(-1, -1)
	assert.Nil(t, lat)
	assert.Nil(t, lon)
}

func TestOrderSplit(t *testing.T) {
	lat, lon := LonLat.Split(13.40, 52.52)
	assert.Equal(t, 52.52, lat)
	assert.Equal(t, 13.40, lon)

	lat, lon = LatLon.Split(52.52, 13.40)
	assert.Equal(t, 52.52, lat)
	assert.Equal(t, 13.40, lon)
}

func TestParseEPSG(t *testing.T) {
	assert.Equal(t, 25832, ParseEPSG("EPSG:25832", 4326))
	assert.Equal(t, 25833, ParseEPSG("25833", 4326))
	assert.Equal(t, 25832, ParseEPSG("null", 25832))
	assert.Equal(t, 25832, ParseEPSG("", 25832))
}
