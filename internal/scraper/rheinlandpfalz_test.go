package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRheinlandPfalzScrapeGeoPortal(t *testing.T) {
	fixture := `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"geometry": {"type": "Point", "coordinates": [7.92, 49.98]},
			"properties": {
				"schulnummer": "51234",
				"schulname": "Gymnasium Mainz",
				"strasse": "Rheinallee 3",
				"plz": "55116",
				"ort": "Mainz",
				"schulart": "Gymnasium",
				"traeger": "Stadt Mainz"
			}
		}]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixture)) //nolint:errcheck
	}))
	defer srv.Close()

	s := NewRheinlandPfalz()
	s.GeoPortalURL = srv.URL

	schools, err := s.Scrape(context.Background(), testFetcher())
	require.NoError(t, err)
	require.Len(t, schools, 1)

	got := schools[0]
	assert.Equal(t, "RP-51234", got.ID)
	assert.Equal(t, "Gymnasium Mainz", got.Name)
	assert.Equal(t, "Stadt Mainz", got.Provider)
	require.True(t, got.HasCoordinates())
	assert.InDelta(t, 49.98, *got.Latitude, 1e-9)
	assert.InDelta(t, 7.92, *got.Longitude, 1e-9)
}

const rpDetailFixture = `<html><body>
<div class="rlp-schooldatabase-detail">
	<h1>Gymnasium am Rhein</h1>
	<table>
		<tr><td>Schulnummer:</td><td>51234</td></tr>
		<tr><td>Anschrift:</td><td>Gymnasium am Rhein<br>Rheinallee 3<br>55116 Mainz</td></tr>
		<tr><td>Kurzbezeichnung:</td><td>GY Mainz</td></tr>
		<tr><td>E-Mail:</td><td>sekretariat(at)gar.example</td></tr>
		<tr><td>Internet:</td><td><a href="https://www.gar.example">www.gar.example</a></td></tr>
		<tr><td>Telefon:</td><td>06131 100</td></tr>
		<tr><td>Telefax:</td><td>06131 101</td></tr>
		<tr><td>Tr&#228;ger:</td><td>Stadt Mainz</td></tr>
	</table>
	<a href="https://www.openstreetmap.org/#map=17/49.9838/8.2668">Karte</a>
</div>
</body></html>`

func TestRheinlandPfalzScrapeFallsBackToHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/geoportal", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/schulen", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/schulen/einzelanzeige?id=51234">Gymnasium am Rhein</a>
			<a href="/impressum">Impressum</a>
		</body></html>`)) //nolint:errcheck
	})
	mux.HandleFunc("/schulen/einzelanzeige", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rpDetailFixture)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewRheinlandPfalz()
	s.GeoPortalURL = srv.URL + "/geoportal"
	s.ListURL = srv.URL + "/schulen"

	schools, err := s.Scrape(context.Background(), testFetcher())
	require.NoError(t, err)
	require.Len(t, schools, 1)

	got := schools[0]
	assert.Equal(t, "RP-51234", got.ID)
	assert.Equal(t, "Gymnasium am Rhein", got.Name)
	assert.Equal(t, "Rheinallee 3", got.Address)
	assert.Equal(t, "55116", got.Zip)
	assert.Equal(t, "Mainz", got.City)
	assert.Equal(t, "Gymnasium", got.SchoolType)
	assert.Equal(t, "sekretariat@gar.example", got.Email)
	assert.Equal(t, "www.gar.example", got.Website)
	assert.Equal(t, "Stadt Mainz", got.Provider)
	require.True(t, got.HasCoordinates())
	assert.InDelta(t, 49.9838, *got.Latitude, 1e-9)
	assert.InDelta(t, 8.2668, *got.Longitude, 1e-9)
}

func TestRheinlandPfalzFallbackSkipsDetailWithoutSchulnummer(t *testing.T) {
	keyless := `<html><body><div class="rlp-schooldatabase-detail">
		<h1>Schule ohne Nummer</h1>
		<table><tr><td>Anschrift:</td><td>Schule ohne Nummer<br>Hauptstraße 1<br>56068 Koblenz</td></tr></table>
	</div></body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/geoportal", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/schulen", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/schulen/einzelanzeige?id=1">Schule ohne Nummer</a>
			<a href="/schulen/einzelanzeige?id=51234">Gymnasium am Rhein</a>
		</body></html>`)) //nolint:errcheck
	})
	mux.HandleFunc("/schulen/einzelanzeige", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "51234" {
			w.Write([]byte(rpDetailFixture)) //nolint:errcheck
			return
		}
		w.Write([]byte(keyless)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewRheinlandPfalz()
	s.GeoPortalURL = srv.URL + "/geoportal"
	s.ListURL = srv.URL + "/schulen"

	schools, err := s.Scrape(context.Background(), testFetcher())
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "RP-51234", schools[0].ID)
	for _, school := range schools {
		assert.NotEqual(t, "RP-", school.ID)
	}
}

func TestParseRPDetailSchoolTypes(t *testing.T) {
	build := func(kurz string) []byte {
		return []byte(`<html><body><div class="rlp-schooldatabase-detail">
			<h1>Schule</h1>
			<table>
				<tr><td>Schulnummer:</td><td>10001</td></tr>
				<tr><td>Kurzbezeichnung:</td><td>` + kurz + `</td></tr>
			</table>
		</div></body></html>`)
	}

	school, ok := parseRPDetail(build("SFG Ludwigshafen"))
	require.True(t, ok)
	assert.Equal(t, "Förderschule", school.SchoolType)

	school, ok = parseRPDetail(build("RS+FOS Koblenz"))
	require.True(t, ok)
	assert.Equal(t, "Realschule plus mit Fachoberschule", school.SchoolType)

	school, ok = parseRPDetail(build("XYZ Unbekannt"))
	require.True(t, ok)
	assert.Empty(t, school.SchoolType)
}

func TestOSMPathCoords(t *testing.T) {
	lat, lon := osmPathCoords("https://www.openstreetmap.org/#map=17/49.9838/7.9229/")
	require.NotNil(t, lat)
	assert.InDelta(t, 49.9838, *lat, 1e-9)
	assert.InDelta(t, 7.9229, *lon, 1e-9)

	lat, lon = osmPathCoords("https://www.openstreetmap.org/")
	assert.Nil(t, lat)
	assert.Nil(t, lon)
}
