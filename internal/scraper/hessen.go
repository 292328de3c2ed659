package scraper

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
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

// Hessen scrapes schul-db.bildung.hessen.de. The database only answers
// form-based searches: fetch the form for a CSRF token and the school-type
// option list, post one search per school type to collect detail links, then
// parse each detail page. Coordinates hide in an embedded OpenStreetMap
// iframe's marker parameter.
type Hessen struct {
	BaseURL string
}

func NewHessen() *Hessen {
	return &Hessen{BaseURL: "https://schul-db.bildung.hessen.de/schul_db.html"}
}

func (s *Hessen) Key() string    { return "hessen" }
func (s *Hessen) Prefix() string { return "HE" }

var zipCityRE = regexp.MustCompile(`(\d+) (.+)`)

func (s *Hessen) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	log := zap.L().With(zap.String("state", s.Key()))
	session := f.Session()

	resp, err := session.Get(ctx, s.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "hessen: fetch search form")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "hessen: parse search form")
	}

	csrf, _ := doc.Find(`input[name="csrfmiddlewaretoken"]`).First().Attr("value")
	if csrf == "" {
		return nil, eris.New("hessen: missing CSRF token")
	}

	var schoolTypes []string
	doc.Find("#id_school_type option").Each(func(_ int, opt *goquery.Selection) {
		if v, ok := opt.Attr("value"); ok && v != "" {
			schoolTypes = append(schoolTypes, v)
		}
	})

	detailURLs := s.collectDetailURLs(ctx, session, csrf, schoolTypes, log)
	log.Info("found school detail pages", zap.Int("pages", len(detailURLs)))

	var schools []model.School
	skipped := 0
	for _, detailURL := range detailURLs {
		detailResp, err := session.Get(ctx, detailURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "hessen")
			}
			log.Debug("detail fetch failed, skipping school",
				zap.String("url", detailURL), zap.Error(err))
			skipped++
			continue
		}
		school, ok := s.parseDetail(detailURL, detailResp.Body)
		if !ok {
			skipped++
			continue
		}
		schools = append(schools, school)
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// collectDetailURLs posts one search per school type and merges the linked
// detail pages. A failed search drops only that type's results.
func (s *Hessen) collectDetailURLs(ctx context.Context, session fetcher.Fetcher, csrf string, schoolTypes []string, log *zap.Logger) []string {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, st := range schoolTypes {
		form := url.Values{
			"school_name":         {""},
			"school_town":         {""},
			"school_zip":          {""},
			"school_number":       {""},
			"csrfmiddlewaretoken": {csrf},
			"school_type":         {st},
			"submit_hesse":        {"Hessische+Schule+suchen+..."},
		}
		resp, err := session.Post(ctx, s.BaseURL,
			strings.NewReader(form.Encode()),
			fetcher.WithHeader("Content-Type", "application/x-www-form-urlencoded"),
		)
		if err != nil {
			log.Warn("school type search failed", zap.String("type", st), zap.Error(err))
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			continue
		}
		doc.Find("tbody tr td a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			seen[base.ResolveReference(ref).String()] = true
		})
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// parseDetail extracts one school from its detail page. Address data lives
// in preformatted text blocks; phone and website in links inside them.
func (s *Hessen) parseDetail(detailURL string, body []byte) (model.School, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.School{}, false
	}

	pres := doc.Find("pre")
	if pres.Length() == 0 {
		return model.School{}, false
	}

	addressLines := strings.Split(pres.First().Text(), "\n")
	if len(addressLines) < 4 {
		return model.School{}, false
	}
	zipCity := zipCityRE.FindStringSubmatch(addressLines[3])
	if zipCity == nil {
		return model.School{}, false
	}

	id := detailURL[strings.LastIndex(detailURL, "=")+1:]
	if id == "" || id == detailURL {
		return model.School{}, false
	}

	school := model.School{
		ID:      "HE-" + id,
		Name:    strings.TrimSpace(addressLines[1]),
		Address: strings.TrimSpace(addressLines[2]),
		Zip:     zipCity[1],
		City:    strings.TrimSpace(zipCity[2]),
	}

	pres.Each(func(_ int, pre *goquery.Selection) {
		for line := range strings.SplitSeq(pre.Text(), "\n") {
			if strings.Contains(line, "Fax: ") {
				school.Fax = strings.TrimSpace(strings.ReplaceAll(line, "Fax: ", ""))
				return
			}
		}
	})

	doc.Find("pre a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		switch {
		case strings.Contains(href, "tel:"):
			school.Phone = strings.ReplaceAll(href, "tel:", "")
		case strings.Contains(href, "http"):
			school.Website = href
		}
	})

	school.SchoolType = strings.TrimSpace(doc.Find("main .col-md-9.col-lg-9").First().Text())

	if iframe := doc.Find(`iframe[src*="openstreetmap.org"]`).First(); iframe.Length() > 0 {
		src, _ := iframe.Attr("src")
		school.Latitude, school.Longitude = osmMarkerCoords(src)
	}

	return school, true
}

// osmMarkerCoords reads "lat,lon" from an OSM embed URL's marker parameter.
// The database uses -1,-1 as a placeholder for unknown locations; the bounds
// check discards it along with anything else implausible.
func osmMarkerCoords(src string) (*float64, *float64) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, nil
	}
	marker := u.Query().Get("marker")
	latStr, lonStr, found := strings.Cut(marker, ",")
	if !found {
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return nil, nil
	}
	return geo.Pair(lat, lon)
}
