package scraper

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/geo"
	"github.com/jedeschule/schulsync/internal/model"
)

// rpSchoolTypes expands the short codes bildung.rlp.de uses in its
// Kurzbezeichnung column. Codes starting with SF are handled separately.
var rpSchoolTypes = map[string]string{
	"BEA":      "BEA",
	"BBS":      "Berufsbildende Schule",
	"FWS":      "Freie Waldorfschule",
	"GHS":      "Grund- und Hauptschule (org. verbunden)",
	"GRS+":     "Grund- und Realschule plus (org. verbunden)",
	"GS":       "Grundschule",
	"GY":       "Gymnasium",
	"HS":       "Hauptschule",
	"IGS":      "Integrierte Gesamtschule",
	"Koll":     "Kolleg",
	"Koll/AGY": "Kolleg und Abendgymnasium (org.verbunden)",
	"RS":       "Realschule",
	"RS+":      "Realschule plus",
	"RS+FOS":   "Realschule plus mit Fachoberschule",
	"StudSem":  "Studienseminar",
}

// RheinlandPfalz prefers the GeoPortal RLP spatial-objects API, which serves
// the full school directory as one GeoJSON collection. When that API is
// unavailable it falls back to crawling the school database on bildung.rlp.de.
type RheinlandPfalz struct {
	GeoPortalURL string
	ListURL      string
}

func NewRheinlandPfalz() *RheinlandPfalz {
	return &RheinlandPfalz{
		GeoPortalURL: "https://www.geoportal.rlp.de/spatial-objects/350/collections/schulstandorte/items?f=json&limit=4000",
		ListURL:      "https://bildung.rlp.de/schulen",
	}
}

func (s *RheinlandPfalz) Key() string    { return "rheinland-pfalz" }
func (s *RheinlandPfalz) Prefix() string { return "RP" }

func (s *RheinlandPfalz) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	log := zap.L().With(zap.String("state", s.Key()))

	schools, err := s.scrapeGeoPortal(ctx, f)
	if err == nil {
		return schools, nil
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "rheinland-pfalz")
	}
	log.Warn("GeoPortal unavailable, falling back to HTML crawl", zap.Error(err))
	return s.scrapeHTML(ctx, f, log)
}

func (s *RheinlandPfalz) scrapeGeoPortal(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.GeoPortalURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch geoportal collection")
	}
	features, err := decodeFeatures(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "decode geoportal collection")
	}

	var schools []model.School
	skipped := 0
	for _, ft := range features {
		id := prop(ft.props, "schulnummer", "OBJECTID")
		if id == "" {
			skipped++
			continue
		}
		schools = append(schools, model.School{
			ID:         "RP-" + id,
			Name:       prop(ft.props, "schulname", "name"),
			Address:    prop(ft.props, "strasse"),
			Zip:        prop(ft.props, "plz"),
			City:       prop(ft.props, "ort"),
			SchoolType: prop(ft.props, "schulart", "schulform"),
			Phone:      prop(ft.props, "telefon"),
			Fax:        prop(ft.props, "telefax"),
			Email:      prop(ft.props, "email"),
			Website:    prop(ft.props, "internet", "homepage"),
			Provider:   prop(ft.props, "traeger"),
			Latitude:   ft.lat,
			Longitude:  ft.lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

func (s *RheinlandPfalz) scrapeHTML(ctx context.Context, f fetcher.Fetcher, log *zap.Logger) ([]model.School, error) {
	session := f.Session()

	resp, err := session.Get(ctx, s.ListURL)
	if err != nil {
		return nil, eris.Wrap(err, "rheinland-pfalz: fetch school list")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "rheinland-pfalz: parse school list")
	}

	listURL, err := url.Parse(s.ListURL)
	if err != nil {
		return nil, eris.Wrap(err, "rheinland-pfalz: list url")
	}

	seen := make(map[string]bool)
	doc.Find(`a[href*="einzelanzeige"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		seen[listURL.ResolveReference(ref).String()] = true
	})

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	sort.Strings(links)
	log.Info("found school detail pages", zap.Int("pages", len(links)))

	var schools []model.School
	skipped := 0
	for i, link := range links {
		detailResp, err := session.Get(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "rheinland-pfalz")
			}
			skipped++
			continue
		}
		school, ok := parseRPDetail(detailResp.Body)
		if !ok {
			skipped++
			continue
		}
		schools = append(schools, school)

		if (i+1)%100 == 0 {
			log.Info("detail progress", zap.Int("fetched", i+1), zap.Int("total", len(links)))
		}
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

func parseRPDetail(body []byte) (model.School, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.School{}, false
	}
	container := doc.Find(".rlp-schooldatabase-detail").First()
	if container.Length() == 0 {
		return model.School{}, false
	}

	item := make(map[string][]string)
	container.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return
		}
		key := strings.ReplaceAll(strings.TrimSpace(cells.Eq(0).Text()), ":", "")
		// Values span several text nodes separated by <br> tags.
		var parts []string
		cells.Eq(1).Contents().Each(func(_ int, node *goquery.Selection) {
			if text := strings.TrimSpace(node.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		item[key] = parts
	})

	num := firstOf(item, "Schulnummer")
	if num == "" {
		return model.School{}, false
	}

	school := model.School{
		ID:       "RP-" + num,
		Name:     strings.TrimSpace(container.Find("h1").First().Text()),
		Website:  firstOf(item, "Internet"),
		Email:    strings.ReplaceAll(firstOf(item, "E-Mail"), "(at)", "@"),
		Provider: firstOf(item, "Träger"),
		Fax:      firstOf(item, "Telefax"),
		Phone:    firstOf(item, "Telefon"),
	}

	// Anschrift lists name, street, and "PLZ Ort" as separate lines.
	if addr := item["Anschrift"]; len(addr) >= 2 {
		school.Address = addr[1]
		if zip, city, found := strings.Cut(addr[len(addr)-1], " "); found {
			school.Zip = zip
			school.City = city
		} else {
			school.Zip = addr[len(addr)-1]
		}
	}

	if kurz := firstOf(item, "Kurzbezeichnung"); kurz != "" {
		code, _, _ := strings.Cut(kurz, " ")
		if strings.HasPrefix(code, "SF") {
			school.SchoolType = "Förderschule"
		} else {
			school.SchoolType = rpSchoolTypes[code]
		}
	}

	if osm := container.Find(`a[href*="openstreetmap"]`).First(); osm.Length() > 0 {
		href, _ := osm.Attr("href")
		school.Latitude, school.Longitude = osmPathCoords(href)
	}

	return school, true
}

func firstOf(item map[string][]string, key string) string {
	if parts := item[key]; len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// osmPathCoords reads latitude and longitude from the last two segments of
// an openstreetmap.org map URL, e.g. .../#map=17/49.9838/7.9229.
func osmPathCoords(href string) (*float64, *float64) {
	parts := strings.Split(strings.TrimRight(href, "/"), "/")
	if len(parts) < 2 {
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(parts[len(parts)-2], 64)
	lon, errLon := strconv.ParseFloat(parts[len(parts)-1], 64)
	if errLat != nil || errLon != nil {
		return nil, nil
	}
	return geo.Pair(lat, lon)
}
