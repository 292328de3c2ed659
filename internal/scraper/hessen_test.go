package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hessenFormFixture = `<html><body>
<form method="post">
	<input type="hidden" name="csrfmiddlewaretoken" value="token-123">
	<select id="id_school_type" name="school_type">
		<option value="">Alle</option>
		<option value="GS">Grundschule</option>
		<option value="GY">Gymnasium</option>
	</select>
</form>
</body></html>`

const hessenDetailFixture = `<html><body>
<main>
	<div class="col-md-9 col-lg-9">Grundschule</div>
	<pre>
Grundschule am Woog
Woogstra&#223;e 7
64287 Darmstadt
</pre>
	<pre>
Tel.: <a href="tel:+496151870">06151 870</a>
Fax: 06151 871
<a href="https://www.gs-woog.example">Homepage</a>
</pre>
	<iframe src="https://www.openstreetmap.org/export/embed.html?bbox=8.6,49.8,8.7,49.9&amp;marker=49.872,8.653"></iframe>
</main>
</body></html>`

func TestHessenScrape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/schul_db.html", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "token-123", r.PostForm.Get("csrfmiddlewaretoken"))
			schoolType := r.PostForm.Get("school_type")
			if schoolType == "GS" {
				w.Write([]byte(`<html><body><table><tbody><tr>
					<td><a href="/detail?school=4711">Grundschule am Woog</a></td>
				</tr></tbody></table></body></html>`)) //nolint:errcheck
				return
			}
			w.Write([]byte(`<html><body><table><tbody></tbody></table></body></html>`)) //nolint:errcheck
			return
		}
		w.Write([]byte(hessenFormFixture)) //nolint:errcheck
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(hessenDetailFixture)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewHessen()
	s.BaseURL = srv.URL + "/schul_db.html"

	schools, err := s.Scrape(context.Background(), testFetcher())
	require.NoError(t, err)
	require.Len(t, schools, 1)

	got := schools[0]
	assert.Equal(t, "HE-4711", got.ID)
	assert.Equal(t, "Grundschule am Woog", got.Name)
	assert.Equal(t, "Woogstraße 7", got.Address)
	assert.Equal(t, "64287", got.Zip)
	assert.Equal(t, "Darmstadt", got.City)
	assert.Equal(t, "Grundschule", got.SchoolType)
	assert.Equal(t, "+496151870", got.Phone)
	assert.Equal(t, "06151 871", got.Fax)
	assert.Equal(t, "https://www.gs-woog.example", got.Website)
	require.True(t, got.HasCoordinates())
	assert.InDelta(t, 49.872, *got.Latitude, 1e-9)
	assert.InDelta(t, 8.653, *got.Longitude, 1e-9)
}

func TestHessenScrapeFailsWithoutCSRFToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>kein Formular</body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	s := NewHessen()
	s.BaseURL = srv.URL + "/schul_db.html"

	_, err := s.Scrape(context.Background(), testFetcher())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSRF")
}

func TestOSMMarkerCoords(t *testing.T) {
	lat, lon := osmMarkerCoords("https://www.openstreetmap.org/export/embed.html?marker=50.1,8.7")
	require.NotNil(t, lat)
	assert.InDelta(t, 50.1, *lat, 1e-9)
	assert.InDelta(t, 8.7, *lon, 1e-9)

	// The -1,-1 placeholder means "location unknown".
	lat, lon = osmMarkerCoords("https://www.openstreetmap.org/export/embed.html?marker=-1,-1")
	assert.Nil(t, lat)
	assert.Nil(t, lon)

	lat, lon = osmMarkerCoords("https://www.openstreetmap.org/export/embed.html")
	assert.Nil(t, lat)
	assert.Nil(t, lon)
}
