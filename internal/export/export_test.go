package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/jedeschule/schulsync/internal/model"
)

func sampleSchools() []model.School {
	lat, lon := 52.52, 13.405
	return []model.School{
		{
			ID:         "BE-01G01",
			Name:       "Grundschule am Brandenburger Tor",
			Address:    "Ebertstr. 5",
			Zip:        "10117",
			City:       "Berlin",
			Email:      "sekretariat@gabt.de",
			SchoolType: "Grundschule",
			Latitude:   &lat,
			Longitude:  &lon,
		},
		{
			ID:   "HB-005",
			Name: "Schule an der Weser",
			City: "Bremen",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{
		"":       FormatJSON,
		"json":   FormatJSON,
		"CSV":    FormatCSV,
		" xlsx ": FormatXLSX,
	} {
		got, err := ParseFormat(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	_, err := ParseFormat("yaml")
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("out/schulen.csv"))
	assert.Equal(t, FormatXLSX, DetectFormat("schulen.XLSX"))
	assert.Equal(t, FormatJSON, DetectFormat("schulen.json"))
	assert.Equal(t, FormatJSON, DetectFormat("schulen"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleSchools()))

	var decoded []model.School
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "BE-01G01", decoded[0].ID)
	require.NotNil(t, decoded[0].Latitude)
	assert.InDelta(t, 52.52, *decoded[0].Latitude, 1e-9)

	// Schools without coordinates must not serialize zero values.
	assert.Nil(t, decoded[1].Latitude)
}

func TestWriteJSONEmptySliceIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleSchools()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, columns, records[0])
	assert.Equal(t, "BE-01G01", records[1][0])
	assert.Equal(t, "52.52", records[1][14])
	assert.Equal(t, "13.405", records[1][15])

	// Missing coordinates stay empty, not "0".
	assert.Equal(t, "", records[2][14])
}

func TestWriteXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schulen.xlsx")
	require.NoError(t, WriteFile(path, FormatXLSX, sampleSchools()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Schulen", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "BE-01G01", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "Schule an der Weser", sheet.Rows[2].Cells[1].String())
}

func TestWriteFileCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out", "schulen.json")
	require.NoError(t, WriteFile(path, FormatJSON, sampleSchools()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BE-01G01")
}
