package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/geo"
	"github.com/jedeschule/schulsync/internal/model"
)

// wfsFeature is one flattened wfs:member. Leaf element text is keyed by local
// name (namespace prefixes stripped); the gml:pos content is kept separately.
type wfsFeature struct {
	id   string
	vals map[string]string
	pos  string
}

func (w wfsFeature) get(key string) string {
	return strings.TrimSpace(w.vals[key])
}

// coords parses the gml:pos pair using the source's documented axis order.
func (w wfsFeature) coords(order geo.Order) (*float64, *float64) {
	fields := strings.Fields(w.pos)
	if len(fields) < 2 {
		return nil, nil
	}
	a, errA := strconv.ParseFloat(fields[0], 64)
	b, errB := strconv.ParseFloat(fields[1], 64)
	if errA != nil || errB != nil {
		return nil, nil
	}
	return geo.Pair(order.Split(a, b))
}

// parseWFSMembers flattens every feature inside wfs:member elements,
// including the nested FeatureCollections some servers emit per type name.
// It only looks at local element names, so it tolerates whatever namespace
// prefixes a server chooses.
func parseWFSMembers(r io.Reader) ([]wfsFeature, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "wfs: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	type frame struct {
		name     string
		text     strings.Builder
		children bool
	}

	var (
		out          []wfsFeature
		stack        []*frame
		memberDepth  int
		current      *wfsFeature
		featureDepth int
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "wfs: read token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) > 0 {
				stack[len(stack)-1].children = true
			}
			stack = append(stack, &frame{name: t.Name.Local})

			switch {
			case t.Name.Local == "member":
				memberDepth++
			case memberDepth > 0 && current == nil && t.Name.Local != "FeatureCollection":
				current = &wfsFeature{vals: make(map[string]string)}
				featureDepth = len(stack)
				for _, attr := range t.Attr {
					if attr.Name.Local == "id" {
						current.id = attr.Value
					}
				}
			}

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if t.Name.Local == "member" {
				memberDepth--
			}

			if current == nil {
				continue
			}
			if top.name == "pos" {
				current.pos = strings.TrimSpace(top.text.String())
			} else if !top.children {
				if text := strings.TrimSpace(top.text.String()); text != "" {
					current.vals[top.name] = text
				}
			}
			if len(stack) == featureDepth-1 {
				out = append(out, *current)
				current = nil
			}
		}
	}
}

// asIntString normalizes numeric keys that servers pad or format
// inconsistently. Non-numeric input passes through untouched.
func asIntString(s string) string {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return strconv.Itoa(n)
	}
	return s
}

// --- Bayern ---

// Bayern scrapes the Bavarian school locations WFS (seven type names in one
// GetFeature request).
type Bayern struct {
	URL string
}

func NewBayern() *Bayern {
	return &Bayern{
		URL: "https://gdiserv.bayern.de/srv112940/services/schulstandortebayern-wfs?" +
			"SERVICE=WFS&VERSION=2.0.0&REQUEST=GetFeature&srsname=EPSG:4326" +
			"&typename=" +
			"schul:SchulstandorteGrundschulen," +
			"schul:SchulstandorteMittelschulen," +
			"schul:SchulstandorteRealschulen," +
			"schul:SchulstandorteGymnasien," +
			"schul:SchulstandorteBeruflicheSchulen," +
			"schul:SchulstandorteFoerderzentren," +
			"schul:SchulstandorteWeitererSchulen",
	}
}

func (s *Bayern) Key() string    { return "bayern" }
func (s *Bayern) Prefix() string { return "BY" }

func (s *Bayern) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "bayern: fetch features")
	}
	members, err := parseWFSMembers(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "bayern")
	}

	var schools []model.School
	skipped := 0
	for _, m := range members {
		if m.id == "" {
			skipped++
			continue
		}
		lat, lon := m.coords(geo.LonLat)
		schools = append(schools, model.School{
			ID:         "BY-" + m.id,
			Name:       m.get("schulname"),
			Address:    m.get("strasse"),
			City:       m.get("ort"),
			SchoolType: m.get("schulart"),
			Zip:        m.get("postleitzahl"),
			Latitude:   lat,
			Longitude:  lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Thüringen ---

// Thueringen scrapes the GeoProxy Thüringen municipal WFS.
type Thueringen struct {
	URL string
}

func NewThueringen() *Thueringen {
	return &Thueringen{
		URL: "https://www.geoproxy.geoportal-th.de/geoproxy/services/kommunal/komm_wfs?" +
			"SERVICE=WFS&REQUEST=GetFeature&typeNames=kommunal:komm_schul" +
			"&srsname=EPSG:4326&VERSION=2.0.0",
	}
}

func (s *Thueringen) Key() string    { return "thueringen" }
func (s *Thueringen) Prefix() string { return "TH" }

func (s *Thueringen) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "thueringen: fetch features")
	}
	members, err := parseWFSMembers(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "thueringen")
	}

	var schools []model.School
	skipped := 0
	for _, m := range members {
		nr := m.get("Schulnummer")
		if nr == "" {
			skipped++
			continue
		}
		lat, lon := m.coords(geo.LonLat)
		schools = append(schools, model.School{
			ID:         "TH-" + nr,
			Name:       m.get("Name"),
			Address:    model.CleanJoin(" ", m.get("Strasse"), m.get("Hausnummer")),
			Zip:        m.get("PLZ"),
			City:       m.get("Ort"),
			Website:    m.get("Webseite"),
			Email:      m.get("EMail"),
			SchoolType: m.get("Schulart"),
			Provider:   m.get("Traeger"),
			Fax:        m.get("Faxnummer"),
			Phone:      m.get("Telefonnummer"),
			Latitude:   lat,
			Longitude:  lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Mecklenburg-Vorpommern ---

// MecklenburgVorpommern scrapes the Geodaten-MV school locations WFS. The
// server nests a FeatureCollection per school type inside the outer members,
// and its gml:pos is lat-first, unlike the other WFS sources.
type MecklenburgVorpommern struct {
	URL string
}

func NewMecklenburgVorpommern() *MecklenburgVorpommern {
	return &MecklenburgVorpommern{
		URL: "https://www.geodaten-mv.de/dienste/schulstandorte_wfs?" +
			"SERVICE=WFS&REQUEST=GetFeature&VERSION=2.0.0" +
			"&srsname=EPSG%3A4326&typeNames=" +
			"ms:schultyp_grund," +
			"ms:schultyp_regional," +
			"ms:schultyp_gymnasium," +
			"ms:schultyp_gesamt," +
			"ms:schultyp_waldorf," +
			"ms:schultyp_foerder," +
			"ms:schultyp_abendgym," +
			"ms:schultyp_berufs",
	}
}

func (s *MecklenburgVorpommern) Key() string    { return "mecklenburg-vorpommern" }
func (s *MecklenburgVorpommern) Prefix() string { return "MV" }

func (s *MecklenburgVorpommern) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "mecklenburg-vorpommern: fetch features")
	}
	members, err := parseWFSMembers(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "mecklenburg-vorpommern")
	}

	var schools []model.School
	skipped := 0
	for _, m := range members {
		dstnr := asIntString(m.get("dstnr"))
		if dstnr == "" {
			skipped++
			continue
		}
		lat, lon := m.coords(geo.LatLon)
		schools = append(schools, model.School{
			ID:          "MV-" + dstnr,
			Name:        m.get("schulname"),
			Address:     m.get("strassehnr"),
			Zip:         model.ZeroPad(asIntString(m.get("plz")), 5),
			City:        m.get("ort"),
			Website:     m.get("internet"),
			Email:       m.get("emailadresse"),
			Phone:       m.get("telefon"),
			Director:    m.get("schulleiter"),
			SchoolType:  m.get("orgform"),
			LegalStatus: m.get("rechtsstatus"),
			Provider:    m.get("schultraeger"),
			Latitude:    lat,
			Longitude:   lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}
