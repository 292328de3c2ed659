package scraper

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/model"
)

// Bremen crawls bildung.bremen.de: one list page linking every school, then
// one detail page per school rendered as a key/value contact card.
type Bremen struct {
	ListURL string
}

func NewBremen() *Bremen {
	return &Bremen{
		ListURL: "http://www.bildung.bremen.de/detail.php?template=35_schulsuche_stufe2_d",
	}
}

func (s *Bremen) Key() string    { return "bremen" }
func (s *Bremen) Prefix() string { return "HB" }

var zipRE = regexp.MustCompile(`\d{5}`)

func (s *Bremen) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	log := zap.L().With(zap.String("state", s.Key()))

	resp, err := f.Get(ctx, s.ListURL)
	if err != nil {
		return nil, eris.Wrap(err, "bremen: fetch list page")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "bremen: parse list page")
	}

	listURL, err := url.Parse(s.ListURL)
	if err != nil {
		return nil, eris.Wrap(err, "bremen: parse list url")
	}

	type target struct {
		id  string
		url string
	}
	var targets []target
	doc.Find(".table_daten_container a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !strings.Contains(href, "Sid=") {
			return
		}
		_, id, found := strings.Cut(href, "de&Sid=")
		if !found {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		targets = append(targets, target{
			id:  model.ZeroPad(id, 3),
			url: listURL.ResolveReference(ref).String(),
		})
	})
	log.Info("found school links", zap.Int("links", len(targets)))

	var schools []model.School
	skipped := 0
	for _, t := range targets {
		detailResp, err := f.Get(ctx, t.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "bremen")
			}
			log.Debug("detail fetch failed, skipping school",
				zap.String("id", t.id), zap.Error(err))
			skipped++
			continue
		}

		school, ok := s.parseDetail(t.id, detailResp.Body)
		if !ok {
			skipped++
			continue
		}
		schools = append(schools, school)
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// parseDetail extracts one school from its contact-card page. The card lists
// labeled rows whose keys live in span title attributes.
func (s *Bremen) parseDetail(id string, body []byte) (model.School, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.School{}, false
	}

	items := doc.Find(".kogis_main_visitenkarte ul li")
	if items.Length() == 0 {
		return model.School{}, false
	}

	name := strings.TrimSpace(doc.Find(".main_article h3").First().Text())
	if name == "" {
		return model.School{}, false
	}

	card := make(map[string]string)
	items.Each(func(_ int, li *goquery.Selection) {
		span := li.Find("span[title]").First()
		if key, ok := span.Attr("title"); ok {
			card[key] = strings.Join(strings.Fields(li.Text()), " ")
		}
	})

	// "Anschrift:" holds street, a five-digit ZIP, and the city in one line.
	addressRaw := strings.TrimSpace(card["Anschrift:"])
	zip := zipRE.FindString(addressRaw)
	var address, city string
	if parts := zipRE.Split(addressRaw, 2); len(parts) > 0 {
		address = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			city = strings.TrimSpace(parts[1])
		}
	}

	// "Ansprechperson" lists the director first, then deputies.
	var director string
	if person, ok := card["Ansprechperson"]; ok {
		person = strings.ReplaceAll(person, "Schulleitung:", "")
		person = strings.ReplaceAll(person, "Vertretung:", ",")
		director = strings.TrimSpace(strings.SplitN(person, ",", 2)[0])
	}

	return model.School{
		ID:       "HB-" + id,
		Name:     name,
		Address:  address,
		Zip:      zip,
		City:     city,
		Website:  model.Clean(card["Internet"]),
		Email:    model.Clean(card["E-Mail-Adresse"]),
		Fax:      model.Digits(card["Telefax"]),
		Phone:    model.Digits(card["Telefon"]),
		Director: director,
	}, true
}
