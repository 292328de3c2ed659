package scraper

import (
	"context"
	"encoding/csv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jedeschule/schulsync/internal/fetcher"
	"github.com/jedeschule/schulsync/internal/geo"
	"github.com/jedeschule/schulsync/internal/model"
)

// readCSVMaps parses CSV text into one map per row keyed by the header. The
// first skip lines are dropped before reading the header (some exports lead
// with a separator-declaration line).
func readCSVMaps(data string, delimiter rune, skip int) ([]map[string]string, error) {
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")
	if skip > 0 {
		if len(lines) <= skip {
			return nil, eris.New("csv: no content after skipped lines")
		}
		lines = lines[skip:]
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read")
	}
	if len(records) == 0 {
		return nil, eris.New("csv: missing header row")
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, field := range record {
			if i < len(header) {
				row[strings.TrimSpace(header[i])] = field
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// --- Nordrhein-Westfalen ---

// NordrheinWestfalen scrapes the Schulministerium open data CSV. Legal form,
// school form, and provider arrive as coded values resolved through three key
// CSVs; coordinates are UTM with a per-row EPSG column.
type NordrheinWestfalen struct {
	URL           string
	LegalFormURL  string
	SchoolFormURL string
	ProviderURL   string
}

func NewNordrheinWestfalen() *NordrheinWestfalen {
	const base = "https://www.schulministerium.nrw.de/BiPo/OpenData/Schuldaten/"
	return &NordrheinWestfalen{
		URL:           base + "schuldaten.csv",
		LegalFormURL:  base + "key_rechtsform.csv",
		SchoolFormURL: base + "key_schulformschluessel.csv",
		ProviderURL:   base + "key_traeger.csv",
	}
}

func (s *NordrheinWestfalen) Key() string    { return "nordrhein-westfalen" }
func (s *NordrheinWestfalen) Prefix() string { return "NW" }

// keyTable fetches one NRW key CSV into a code→label map. The value is
// joined from up to three columns because the provider table splits names.
// Nil on failure; callers then keep raw codes.
func keyTable(ctx context.Context, f fetcher.Fetcher, url string, valueCols int) map[string]string {
	resp, err := f.Get(ctx, url)
	if err != nil {
		zap.L().Warn("nordrhein-westfalen: key table unavailable, keeping raw codes",
			zap.String("url", url), zap.Error(err))
		return nil
	}

	// Line 1 declares the separator, line 2 holds headers.
	reader := csv.NewReader(strings.NewReader(string(resp.Body)))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil || len(records) <= 2 {
		zap.L().Warn("nordrhein-westfalen: key table malformed, keeping raw codes",
			zap.String("url", url), zap.Error(err))
		return nil
	}

	table := make(map[string]string)
	for _, record := range records[2:] {
		if len(record) < 2 || record[0] == "" {
			continue
		}
		end := min(1+valueCols, len(record))
		table[record[0]] = model.CleanJoin(" ", record[1:end]...)
	}
	return table
}

// resolveCode maps a coded value through a key table, falling back to the
// raw code when the table is missing or has no entry.
func resolveCode(table map[string]string, code string) string {
	return model.First(table[code], code)
}

func (s *NordrheinWestfalen) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	legalForms := keyTable(ctx, f, s.LegalFormURL, 1)
	schoolForms := keyTable(ctx, f, s.SchoolFormURL, 1)
	providers := keyTable(ctx, f, s.ProviderURL, 3)

	resp, err := f.Get(ctx, s.URL, fetcher.WithTimeout(60*time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "nordrhein-westfalen: fetch csv")
	}

	// The first line declares the separator, the second is the header.
	rows, err := readCSVMaps(string(resp.Body), ';', 1)
	if err != nil {
		return nil, eris.Wrap(err, "nordrhein-westfalen")
	}

	var schools []model.School
	skipped := 0
	for _, row := range rows {
		nr := strings.TrimSpace(row["Schulnummer"])
		if nr == "" {
			skipped++
			continue
		}

		epsg := geo.ParseEPSG(row["EPSG"], 25832)
		lat, lon := geo.PointStrings(row["UTMRechtswert"], row["UTMHochwert"], epsg)

		schools = append(schools, model.School{
			ID: "NW-" + nr,
			Name: model.CleanJoin(" ",
				row["Schulbezeichnung_1"],
				row["Schulbezeichnung_2"],
				row["Schulbezeichnung_3"],
			),
			Address:     row["Strasse"],
			Zip:         row["PLZ"],
			City:        row["Ort"],
			Website:     row["Homepage"],
			Email:       row["E-Mail"],
			LegalStatus: resolveCode(legalForms, row["Rechtsform"]),
			SchoolType:  resolveCode(schoolForms, row["Schulform"]),
			Provider:    resolveCode(providers, row["Traegernummer"]),
			Fax:         row["Faxvorwahl"] + row["Fax"],
			Phone:       row["Telefonvorwahl"] + row["Telefon"],
			Latitude:    lat,
			Longitude:   lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}

// --- Schleswig-Holstein ---

// SchleswigHolstein scrapes the open data portal's tab-separated current
// school list.
type SchleswigHolstein struct {
	URL string
}

func NewSchleswigHolstein() *SchleswigHolstein {
	return &SchleswigHolstein{
		URL: "https://opendata.schleswig-holstein.de/collection/schulen/aktuell.csv",
	}
}

func (s *SchleswigHolstein) Key() string    { return "schleswig-holstein" }
func (s *SchleswigHolstein) Prefix() string { return "SH" }

func (s *SchleswigHolstein) Scrape(ctx context.Context, f fetcher.Fetcher) ([]model.School, error) {
	resp, err := f.Get(ctx, s.URL)
	if err != nil {
		return nil, eris.Wrap(err, "schleswig-holstein: fetch csv")
	}

	rows, err := readCSVMaps(string(resp.Body), '\t', 0)
	if err != nil {
		return nil, eris.Wrap(err, "schleswig-holstein")
	}

	var schools []model.School
	skipped := 0
	for _, row := range rows {
		id := strings.TrimSpace(row["id"])
		if id == "" {
			skipped++
			continue
		}

		var lat, lon *float64
		if row["latitude"] != "" && row["longitude"] != "" {
			lat, lon = geo.PointStrings(row["longitude"], row["latitude"], 4326)
		}

		schools = append(schools, model.School{
			ID:        "SH-" + id,
			Name:      row["name"],
			Address:   model.CleanJoin(" ", row["street"], row["houseNumber"]),
			Zip:       row["zipcode"],
			City:      row["city"],
			Email:     row["email"],
			Fax:       row["fax"],
			Phone:     row["phone"],
			Latitude:  lat,
			Longitude: lon,
		})
	}
	logSkipped(s.Key(), skipped)
	return schools, nil
}
