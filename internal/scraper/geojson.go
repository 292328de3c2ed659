package scraper

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/geo"
	"github.com/jedeschule/schulsync/internal/model"
)

// feature is one decoded GeoJSON feature with its point coordinates already
// validated against plausible bounds.
type feature struct {
	props    map[string]any
	lat, lon *float64
}

// decodeFeatures parses a GeoJSON FeatureCollection. Features without a
// usable point geometry keep absent coordinates; only a structurally broken
// document is an error.
func decodeFeatures(body []byte) ([]feature, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, eris.Wrap(err, "decode feature collection")
	}

	out := make([]feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		ft := feature{props: f.Properties}
		if pt, ok := f.Geometry.(*geom.Point); ok && pt != nil {
			ft.lat, ft.lon = geo.Pair(pt.Y(), pt.X())
		}
		out = append(out, ft)
	}
	return out, nil
}

// prop returns the first non-empty property under the given keys, rendering
// numeric values without a float suffix (sources store native keys both ways).
func prop(props map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := props[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

// --- Berlin ---

// Berlin scrapes the GDI Berlin WFS GeoJSON endpoint.
type Berlin struct {
	URL string
}

func NewBerlin() *Berlin {
	return &Berlin{
		URL: "https://gdi.berlin.de/services/wfs/schulen?" +
			"SERVICE=WFS&VERSION=1.1.0&REQUEST=GetFeature&srsname=EPSG:4326" +
			"&typename=fis:schulen&outputFormat=application/json",
	}
}

func (s *Berlin) Key() string    { return "berlin" }
func (s *Berlin) Prefix() string { return "BE" }

func (s *Berlin) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "berlin: fetch features")
	}
	features, err := decodeFeatures(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "berlin")
	}

	var schools []model.School
	skipped := 0
	for _, ft := range features {
		bsn := prop(ft.props, "bsn")
		if bsn == "" {
			skipped++
			continue
		}
		schools = append(schools, model.School{
			ID:          "BE-" + bsn,
			Name:        prop(ft.props, "schulname"),
			Address:     model.CleanJoin(" ", prop(ft.props, "strasse"), prop(ft.props, "hausnr")),
			Zip:         prop(ft.props, "plz"),
			City:        "Berlin",
			Website:     prop(ft.props, "internet"),
			Email:       prop(ft.props, "email"),
			SchoolType:  prop(ft.props, "schulart"),
			LegalStatus: prop(ft.props, "traeger"),
			Fax:         prop(ft.props, "fax"),
			Phone:       prop(ft.props, "telefon"),
			Latitude:    ft.lat,
			Longitude:   ft.lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Brandenburg ---

// Brandenburg scrapes the Schullandschaft WFS GeoJSON endpoint.
type Brandenburg struct {
	URL string
}

func NewBrandenburg() *Brandenburg {
	return &Brandenburg{
		URL: "https://schullandschaft.brandenburg.de/edugis/wfs/schulen?" +
			"SERVICE=WFS&VERSION=1.1.0&REQUEST=GetFeature" +
			"&typename=ms:Schul_Standorte" +
			"&srsname=epsg:4326&outputFormat=application/json",
	}
}

func (s *Brandenburg) Key() string    { return "brandenburg" }
func (s *Brandenburg) Prefix() string { return "BB" }

func (s *Brandenburg) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "brandenburg: fetch features")
	}
	features, err := decodeFeatures(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "brandenburg")
	}

	var schools []model.School
	skipped := 0
	for _, ft := range features {
		nr := prop(ft.props, "schul_nr")
		if nr == "" {
			skipped++
			continue
		}
		schools = append(schools, model.School{
			ID:         "BB-" + nr,
			Name:       prop(ft.props, "schulname"),
			Address:    prop(ft.props, "strasse_hausnr"),
			Zip:        prop(ft.props, "plz"),
			City:       prop(ft.props, "ort"),
			Website:    prop(ft.props, "homepage"),
			Email:      prop(ft.props, "dienst_email"),
			SchoolType: prop(ft.props, "schulform"),
			Provider:   prop(ft.props, "schulamtname"),
			Fax:        prop(ft.props, "faxnummer"),
			Phone:      prop(ft.props, "telefonnummer"),
			Latitude:   ft.lat,
			Longitude:  ft.lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Hamburg ---

// Hamburg scrapes the two api.hamburg.de school collections (state and
// non-state schools).
type Hamburg struct {
	URLs []string
}

func NewHamburg() *Hamburg {
	return &Hamburg{
		URLs: []string{
			"https://api.hamburg.de/datasets/v1/schulen/collections/staatliche_schulen/items?limit=1000",
			"https://api.hamburg.de/datasets/v1/schulen/collections/nicht_staatliche_schulen/items?limit=1000",
		},
	}
}

func (s *Hamburg) Key() string    { return "hamburg" }
func (s *Hamburg) Prefix() string { return "HH" }

func (s *Hamburg) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	var schools []model.School
	skipped := 0

	for _, u := range s.URLs {
		resp, err := f.Get(ctx, u, fetcher.WithHeader("Accept", "application/geo+json, application/json, */*"))
		if err != nil {
			return nil, eris.Wrap(err, "hamburg: fetch collection")
		}
		features, err := decodeFeatures(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "hamburg")
		}

		for _, ft := range features {
			id := prop(ft.props, "schul_id")
			if id == "" {
				skipped++
				continue
			}

			// adresse_ort is "20355 Hamburg": split into zip and city.
			var zip, city string
			if parts := strings.Fields(prop(ft.props, "adresse_ort")); len(parts) > 0 {
				zip = parts[0]
				city = strings.Join(parts[1:], " ")
			}

			schools = append(schools, model.School{
				ID:         "HH-" + id,
				Name:       prop(ft.props, "schulname"),
				Address:    prop(ft.props, "adresse_strasse_hausnr"),
				Zip:        zip,
				City:       city,
				Website:    prop(ft.props, "schul_homepage"),
				Email:      prop(ft.props, "schul_email"),
				SchoolType: prop(ft.props, "schulform"),
				Fax:        prop(ft.props, "fax"),
				Phone:      prop(ft.props, "schul_telefonnr"),
				Director:   prop(ft.props, "name_schulleiter"),
				Latitude:   ft.lat,
				Longitude:  ft.lon,
			})
		}
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Saarland ---

// Saarland scrapes the GeoPortal Saarland OGC API Features endpoint.
type Saarland struct {
	URL string
}

func NewSaarland() *Saarland {
	return &Saarland{
		URL: "https://geoportal.saarland.de/spatial-objects/257" +
			"/collections/Staatliche_Dienste:Schulen_SL/items" +
			"?f=json&limit=2500",
	}
}

func (s *Saarland) Key() string    { return "saarland" }
func (s *Saarland) Prefix() string { return "SL" }

func (s *Saarland) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "saarland: fetch features")
	}
	features, err := decodeFeatures(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "saarland")
	}

	var schools []model.School
	skipped := 0
	for _, ft := range features {
		oid := prop(ft.props, "OBJECTID")
		if oid == "" {
			skipped++
			continue
		}
		schools = append(schools, model.School{
			ID:         "SL-" + oid,
			Name:       prop(ft.props, "Bezeichnung"),
			Address:    prop(ft.props, "Straße"),
			Zip:        prop(ft.props, "PLZ"),
			City:       prop(ft.props, "Ort"),
			SchoolType: prop(ft.props, "Schulform"),
			Phone:      prop(ft.props, "Telefon"),
			Fax:        prop(ft.props, "Fax"),
			Website:    prop(ft.props, "Homepage"),
			Latitude:   ft.lat,
			Longitude:  ft.lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// logSkipped counts upstream records dropped for a missing native key.
func logSkipped(state string, n int) {
	if n > 0 {
		zap.L().Warn("skipped records without native key",
			zap.String("state", state),
			zap.Int("skipped", n),
		)
	}
}
