package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/model"
)

// Niedersachsen scrapes schulen.nibis.de. The portal requires a three-step
// protocol: fetch the search page for an XSRF token and session cookies,
// issue an authenticated Inertia search request for the full school list,
// then fetch a JSON detail document per school number. Losing the token is
// fatal for the state; losing one detail document skips that school.
type Niedersachsen struct {
	BaseURL string
}

func NewNiedersachsen() *Niedersachsen {
	return &Niedersachsen{BaseURL: "https://schulen.nibis.de"}
}

func (s *Niedersachsen) Key() string    { return "niedersachsen" }
func (s *Niedersachsen) Prefix() string { return "NI" }

// niSearchBody is the advanced search request covering all four regional
// school authorities, public and private schools alike.
const niSearchBody = `{
	"type": "Advanced",
	"eingabe": null,
	"filters": {
		"classifications": [],
		"lschb": ["RLSB Braunschweig", "RLSB Hannover", "RLSB Lüneburg", "RLSB Osnabrück"],
		"towns": [], "countys": [], "regions": [],
		"features": [], "bbs_classifications": [],
		"bbs_occupations": [], "bbs_orientations": [],
		"plz": 0, "oeffentlich": "on", "privat": "on"
	}
}`

func (s *Niedersachsen) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	log := zap.L().With(zap.String("state", s.Key()))
	session := f.Session()

	// Step 1: the search page sets the XSRF token cookie.
	resp, err := session.Get(ctx, s.BaseURL+"/search/advanced")
	if err != nil {
		return nil, eris.Wrap(err, "niedersachsen: fetch search page")
	}
	token := xsrfToken(resp)
	if token == "" {
		return nil, eris.New("niedersachsen: missing XSRF token cookie")
	}

	// Step 2: authenticated search for the full school list.
	searchResp, err := session.Post(ctx, s.BaseURL+"/school/search",
		strings.NewReader(niSearchBody),
		fetcher.WithHeader("X-XSRF-TOKEN", token),
		fetcher.WithHeader("X-Inertia", "true"),
		fetcher.WithHeader("Content-Type", "application/json;charset=utf-8"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "niedersachsen: search")
	}

	list := gjson.GetBytes(searchResp.Body, "props.schools").Array()
	if len(list) == 0 {
		return nil, eris.New("niedersachsen: search returned no schools")
	}
	log.Info("fetching school details", zap.Int("schools", len(list)))

	// Step 3: one detail document per school number.
	var schools []model.School
	skipped := 0
	for i, entry := range list {
		schulnr := entry.Get("schulnr").String()
		if schulnr == "" {
			skipped++
			continue
		}

		detailResp, err := session.Get(ctx, s.BaseURL+"/school/getInfo/"+schulnr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "niedersachsen")
			}
			log.Debug("detail fetch failed, skipping school",
				zap.String("schulnr", schulnr), zap.Error(err))
			skipped++
			continue
		}

		item := gjson.ParseBytes(detailResp.Body)
		schools = append(schools, model.School{
			ID: "NI-" + schulnr,
			Name: model.CleanJoin(" ",
				item.Get("schulname").String(),
				item.Get("namenszuatz").String(),
			),
			Phone:       item.Get("telefon").String(),
			Fax:         item.Get("fax").String(),
			Email:       item.Get("email").String(),
			Website:     item.Get("homepage").String(),
			Address:     item.Get("sdb_adressen.0.strasse").String(),
			Zip:         item.Get("sdb_adressen.0.sdb_ort.plz").String(),
			City:        item.Get("sdb_adressen.0.sdb_ort.ort").String(),
			SchoolType:  item.Get("sdb_art.art").String(),
			Provider:    item.Get("sdb_traeger.name").String(),
			LegalStatus: item.Get("sdb_traegerschaft.bezeichnung").String(),
		})

		if (i+1)%200 == 0 {
			log.Info("detail fetch progress",
				zap.Int("fetched", i+1), zap.Int("total", len(list)))
		}
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// xsrfToken extracts the XSRF-TOKEN cookie value. The portal URL-encodes it.
func xsrfToken(resp *fetcher.Response) string {
	for _, c := range resp.Cookies {
		if c.Name == "XSRF-TOKEN" {
			if decoded, err := url.QueryUnescape(c.Value); err == nil {
				return decoded
			}
			return c.Value
		}
	}
	return ""
}
