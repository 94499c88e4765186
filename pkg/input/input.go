// Package input reads the locations to date from map exports.
package input

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// DefaultSelector picks the location list of a map-making JSON export.
const DefaultSelector = "$.customCoordinates"

// Source is the set of queries read from one input
type Source struct {
	Queries []models.Query
	Skipped []Skipped
}

// Skipped is an input record that could not become a query.
type Skipped struct {
	Record int
	Reason string
}

// LoadFile reads queries from a .json or .csv file
func LoadFile(path, selector string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f, selector)
	case ".csv":
		return LoadCSV(f)
	default:
		return Source{}, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
	}
}

// LoadJSON decodes a JSON document and reads the records picked by the jsonpath selector.
// Each record needs "lat", "lng" and "imageDate"; "panoId" or "id" becomes the query ID.
func LoadJSON(r io.Reader, selector string) (Source, error) {
	if selector == "" {
		selector = DefaultSelector
	}

	var doc interface{}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Source{}, fmt.Errorf("failed to decode json input: %w", err)
	}

	selected, err := jsonpath.Get(selector, doc)
	if err != nil {
		return Source{}, fmt.Errorf("selector %q: %w", selector, err)
	}

	records, ok := selected.([]interface{})
	if !ok {
		return Source{}, fmt.Errorf("selector %q did not select a list", selector)
	}

	var src Source
	for i, rec := range records {
		fields, ok := rec.(map[string]interface{})
		if !ok {
			src.Skipped = append(src.Skipped, Skipped{Record: i, Reason: "not an object"})
			continue
		}

		q, err := jsonQuery(i, fields)
		if err != nil {
			src.Skipped = append(src.Skipped, Skipped{Record: i, Reason: err.Error()})
			continue
		}
		src.Queries = append(src.Queries, q)
	}

	return src, nil
}

func jsonQuery(i int, fields map[string]interface{}) (models.Query, error) {
	lat, err := jsonFloat(fields, "lat")
	if err != nil {
		return models.Query{}, err
	}
	lng, err := jsonFloat(fields, "lng")
	if err != nil {
		return models.Query{}, err
	}

	hint, _ := fields["imageDate"].(string)
	if hint == "" {
		return models.Query{}, errors.New("missing imageDate")
	}
	month, err := models.ParseMonth(hint)
	if err != nil {
		return models.Query{}, err
	}

	id := strconv.Itoa(i)
	for _, key := range []string{"panoId", "id"} {
		if v, ok := fields[key].(string); ok && v != "" {
			id = v
			break
		}
	}

	loc := models.Location{Lat: lat, Lng: lng}
	if err := validateLocation(loc); err != nil {
		return models.Query{}, err
	}
	return models.Query{ID: id, Location: loc, Month: month}, nil
}

func jsonFloat(fields map[string]interface{}, key string) (float64, error) {
	switch v := fields[key].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing %s", key)
	default:
		return 0, fmt.Errorf("invalid %s: unexpected %T", key, v)
	}
}

// LoadCSV reads queries from a CSV file with a header row naming the
// lat, lng and imageDate (or month) columns. An id column is optional.
func LoadCSV(r io.Reader) (Source, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Source{}, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	latCol, okLat := cols["lat"]
	lngCol, okLng := cols["lng"]
	if !okLng {
		lngCol, okLng = cols["lon"]
	}
	monthCol, okMonth := cols["imagedate"]
	if !okMonth {
		monthCol, okMonth = cols["month"]
	}
	if !okLat || !okLng || !okMonth {
		return Source{}, fmt.Errorf("csv header must name lat, lng and imageDate columns, got %v", header)
	}
	idCol, hasID := cols["id"]

	var src Source
	for i := 0; ; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Source{}, fmt.Errorf("failed to read csv row %d: %w", i+1, err)
		}

		q, err := csvQuery(row, latCol, lngCol, monthCol)
		if err != nil {
			src.Skipped = append(src.Skipped, Skipped{Record: i, Reason: err.Error()})
			continue
		}
		q.ID = strconv.Itoa(i)
		if hasID && row[idCol] != "" {
			q.ID = row[idCol]
		}
		src.Queries = append(src.Queries, q)
	}

	return src, nil
}

func csvQuery(row []string, latCol, lngCol, monthCol int) (models.Query, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(row[latCol]), 64)
	if err != nil {
		return models.Query{}, fmt.Errorf("invalid lat: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(row[lngCol]), 64)
	if err != nil {
		return models.Query{}, fmt.Errorf("invalid lng: %w", err)
	}
	if strings.TrimSpace(row[monthCol]) == "" {
		return models.Query{}, errors.New("missing imageDate")
	}
	month, err := models.ParseMonth(row[monthCol])
	if err != nil {
		return models.Query{}, err
	}

	loc := models.Location{Lat: lat, Lng: lng}
	if err := validateLocation(loc); err != nil {
		return models.Query{}, err
	}
	return models.Query{Location: loc, Month: month}, nil
}

func validateLocation(loc models.Location) error {
	if math.IsNaN(loc.Lat) || math.IsNaN(loc.Lng) {
		return fmt.Errorf("coordinate %v is not a number", loc)
	}
	if loc.Lat < -90 || loc.Lat > 90 {
		return fmt.Errorf("latitude %v out of range", loc.Lat)
	}
	if loc.Lng < -180 || loc.Lng > 180 {
		return fmt.Errorf("longitude %v out of range", loc.Lng)
	}
	return nil
}
