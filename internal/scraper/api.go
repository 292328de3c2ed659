package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/geo"
	"github.com/jedeschule/schulsync/internal/model"
)

// --- Baden-Württemberg ---

// dischRE extracts the 8-digit school number from a BW school email address.
var dischRE = regexp.MustCompile(`(?i)@(\d{8})\.schule\.bwl\.de`)

// BadenWuerttemberg scrapes the Kultus GIS INSPIRE GovernmentalService
// endpoint. The payload nests every field four to six levels deep, and the
// point coordinates arrive lat-first despite the GeoJSON framing, a
// documented quirk of this source.
type BadenWuerttemberg struct {
	URL        string
	CoordOrder geo.Order
}

func NewBadenWuerttemberg() *BadenWuerttemberg {
	return &BadenWuerttemberg{
		URL: "https://gis.kultus-bw.de/geoserver/us-govserv/ows?" +
			"service=WFS&request=GetFeature" +
			"&typeNames=us-govserv%3AGovernmentalService" +
			"&outputFormat=application%2Fjson",
		CoordOrder: geo.LatLon,
	}
}

func (s *BadenWuerttemberg) Key() string    { return "baden-wuerttemberg" }
func (s *BadenWuerttemberg) Prefix() string { return "BW" }

func (s *BadenWuerttemberg) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL, fetcher.WithTimeout(60*time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "baden-wuerttemberg: fetch features")
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, eris.New("baden-wuerttemberg: invalid JSON response")
	}

	var schools []model.School
	skipped := 0
	for _, ft := range gjson.GetBytes(resp.Body, "features").Array() {
		props := ft.Get("properties")
		contact := props.Get("pointOfContact.Contact")
		addr := contact.Get("address.AddressRepresentation")

		email := strings.TrimSpace(contact.Get("electronicMailAddress").String())
		uuid := ft.Get("id").String()

		var id string
		if m := dischRE.FindStringSubmatch(email); m != nil {
			id = "BW-" + m[1]
		} else if uuid != "" {
			id = "BW-UUID-" + uuid
		} else {
			skipped++
			continue
		}

		var lat, lon *float64
		if coords := props.Get("serviceLocation.serviceLocationByGeometry.coordinates").Array(); len(coords) >= 2 {
			lat, lon = geo.Pair(s.CoordOrder.Split(coords[0].Float(), coords[1].Float()))
		}

		street := strings.TrimSpace(addr.Get("thoroughfare.GeographicalName.spelling.text").String())
		locator := strings.TrimSpace(addr.Get("locatorDesignator").String())

		schools = append(schools, model.School{
			ID:         id,
			Name:       strings.TrimSpace(addr.Get("locatorName.spelling.text").String()),
			Address:    model.CleanJoin(" ", street, locator),
			Zip:        strings.TrimSpace(addr.Get("postCode").String()),
			City:       strings.TrimSpace(addr.Get("postName.GeographicalName.spelling.text").String()),
			Email:      email,
			Phone:      strings.TrimSpace(contact.Get("telephoneVoice").String()),
			Fax:        strings.TrimSpace(contact.Get("telephoneFacsimile").String()),
			Website:    strings.TrimSpace(contact.Get("website").String()),
			SchoolType: props.Get("serviceType.\\@href").String(),
			Latitude:   lat,
			Longitude:  lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Sachsen ---

// Sachsen scrapes the Schuldatenbank JSON API. School types arrive as coded
// keys resolved through a secondary key-table endpoint; if that table cannot
// be fetched the raw codes are kept rather than failing the state.
type Sachsen struct {
	URL      string
	TypesURL string
}

func NewSachsen() *Sachsen {
	fields := []string{
		"id", "name", "school_category_key", "school_type_keys",
		"street", "postcode", "community", "community_key",
		"community_part", "community_part_key", "relocated",
		"phone_identifier_1", "phone_code_1", "phone_number_1",
		"phone_identifier_2", "phone_code_2", "phone_number_2",
		"phone_identifier_3", "phone_code_3", "phone_number_3",
		"fax_code", "fax_number", "mail", "homepage",
		"longitude", "latitude",
	}
	typeKeys := []string{
		"11", "12", "15", "13", "14", "16",
		"31", "32", "33", "34", "35", "36", "37", "39",
		"21", "22", "23", "24", "25", "28",
		"42", "43", "44",
	}

	var q strings.Builder
	q.WriteString("https://schuldatenbank.sachsen.de/api/v1/schools?owner_extended=yes")
	for _, k := range typeKeys {
		fmt.Fprintf(&q, "&school_type_key%%5B%%5D=%s", k)
	}
	q.WriteString("&building_type_key=01")
	for _, f := range fields {
		fmt.Fprintf(&q, "&fields%%5B%%5D=%s", f)
	}
	q.WriteString("&order%5B%5D=name&format=json")

	return &Sachsen{
		URL:      q.String(),
		TypesURL: "https://schuldatenbank.sachsen.de/api/v1/key_tables/school_types?format=json",
	}
}

func (s *Sachsen) Key() string    { return "sachsen" }
func (s *Sachsen) Prefix() string { return "SN" }

type sachsenBuilding struct {
	Street         string        `json:"street"`
	Postcode       string        `json:"postcode"`
	Community      string        `json:"community"`
	Mail           string        `json:"mail"`
	Homepage       string        `json:"homepage"`
	FaxCode        string        `json:"fax_code"`
	FaxNumber      string        `json:"fax_number"`
	PhoneCode1     string        `json:"phone_code_1"`
	PhoneNumber1   string        `json:"phone_number_1"`
	Latitude       any           `json:"latitude"`
	Longitude      any           `json:"longitude"`
	SchoolTypeKeys []json.Number `json:"school_type_keys"`
}

type sachsenSchool struct {
	ID        json.Number       `json:"id"`
	Name      string            `json:"name"`
	Buildings []sachsenBuilding `json:"buildings"`
}

// schoolTypes fetches the key table once per scrape. Nil on failure.
func (s *Sachsen) schoolTypes(ctx context.Context, f fetcher.Fetcher) map[string]string {
	resp, err := f.Get(ctx, s.TypesURL)
	if err != nil {
		zap.L().Warn("sachsen: key table unavailable, keeping raw type codes", zap.Error(err))
		return nil
	}
	var entries []struct {
		Key   json.Number `json:"key"`
		Label string      `json:"label"`
	}
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		zap.L().Warn("sachsen: key table malformed, keeping raw type codes", zap.Error(err))
		return nil
	}
	types := make(map[string]string, len(entries))
	for _, e := range entries {
		types[e.Key.String()] = e.Label
	}
	return types
}

func (s *Sachsen) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	types := s.schoolTypes(ctx, f)

	resp, err := f.Get(ctx, s.URL, fetcher.WithTimeout(60*time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "sachsen: fetch schools")
	}
	var raw []sachsenSchool
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, eris.Wrap(err, "sachsen: decode schools")
	}

	var schools []model.School
	skipped := 0
	for _, item := range raw {
		id := item.ID.String()
		if id == "" {
			skipped++
			continue
		}
		school := model.School{ID: "SN-" + id, Name: item.Name}

		if len(item.Buildings) > 0 {
			b := item.Buildings[0]
			school.Address = b.Street
			school.Zip = b.Postcode
			school.City = b.Community
			school.Email = b.Mail
			school.Website = b.Homepage
			school.Fax = b.FaxCode + b.FaxNumber
			school.Phone = b.PhoneCode1 + b.PhoneNumber1

			if lat, lon := anyFloat(b.Latitude), anyFloat(b.Longitude); lat != nil && lon != nil {
				school.Latitude, school.Longitude = geo.Pair(*lat, *lon)
			}

			if len(b.SchoolTypeKeys) > 0 {
				key := b.SchoolTypeKeys[0].String()
				school.SchoolType = model.First(types[key], key)
			}
		}
		schools = append(schools, school)
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// anyFloat coerces the JSON number-or-string coordinate values some sources
// emit. Nil when absent or unparseable.
func anyFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

// --- Sachsen-Anhalt ---

// SachsenAnhalt scrapes the ArcGIS FeatureServer layer that publishes school
// locations projected in EPSG:25832.
type SachsenAnhalt struct {
	URL  string
	SRID int
}

func NewSachsenAnhalt() *SachsenAnhalt {
	return &SachsenAnhalt{
		URL: "https://services-eu1.arcgis.com/3jNCHSftk0N4t7dd/arcgis/rest/services/" +
			"Schulenstandorte_EPSG25832_2024_25_Sicht/FeatureServer/44/query?" +
			"where=1%3D1&outFields=*&f=json",
		SRID: 25832,
	}
}

func (s *SachsenAnhalt) Key() string    { return "sachsen-anhalt" }
func (s *SachsenAnhalt) Prefix() string { return "ST" }

func (s *SachsenAnhalt) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL, fetcher.WithTimeout(60*time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "sachsen-anhalt: fetch features")
	}

	var data struct {
		Features []struct {
			Attributes map[string]any `json:"attributes"`
			Geometry   *struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, eris.Wrap(err, "sachsen-anhalt: decode features")
	}

	var schools []model.School
	skipped := 0
	for _, ft := range data.Features {
		oid, ok := ft.Attributes["OBJECTID"].(float64)
		if !ok {
			skipped++
			continue
		}

		var lat, lon *float64
		if ft.Geometry != nil {
			lat, lon = geo.Point(ft.Geometry.X, ft.Geometry.Y, s.SRID)
		}

		schools = append(schools, model.School{
			ID:          fmt.Sprintf("ST-ARC%05d", int(oid)),
			Name:        prop(ft.Attributes, "Name"),
			City:        prop(ft.Attributes, "Ort"),
			SchoolType:  prop(ft.Attributes, "Schulform"),
			LegalStatus: prop(ft.Attributes, "Kategorie"),
			Provider:    prop(ft.Attributes, "Traeg_Anw"),
			Latitude:    lat,
			Longitude:   lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}
