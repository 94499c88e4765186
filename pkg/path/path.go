// Package path groups resolved captures into trips: runs of captures taken
// close enough in time to belong to the same drive.
package path

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// Segment is a time-ordered run of captures with no gap larger than the segmentation gap
type Segment struct {
	Captures []models.Capture
}

// Start returns the timestamp of the first capture
func (s Segment) Start() time.Time {
	if len(s.Captures) == 0 {
		return time.Time{}
	}
	return s.Captures[0].Timestamp
}

// End returns the timestamp of the last capture
func (s Segment) End() time.Time {
	if len(s.Captures) == 0 {
		return time.Time{}
	}
	return s.Captures[len(s.Captures)-1].Timestamp
}

// Duration returns End - Start
func (s Segment) Duration() time.Duration {
	return s.End().Sub(s.Start())
}

// Split sorts captures by timestamp and starts a new segment whenever two
// consecutive captures are more than gap apart. The input is not modified.
func Split(captures []models.Capture, gap time.Duration) []Segment {
	if len(captures) == 0 {
		return nil
	}

	sorted := make([]models.Capture, len(captures))
	copy(sorted, captures)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	segments := []Segment{{Captures: []models.Capture{sorted[0]}}}
	for i := 1; i < len(sorted); i++ {
		cur := &segments[len(segments)-1]
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) > gap {
			segments = append(segments, Segment{Captures: []models.Capture{sorted[i]}})
			continue
		}
		cur.Captures = append(cur.Captures, sorted[i])
	}

	return segments
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string                 `json:"type"`
	Geometry   geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geometry struct {
	Type        string      `json:"type"`
	Coordinates interface{} `json:"coordinates"`
}

// WriteGeoJSON writes the segments as a FeatureCollection. Segments with
// several captures become LineStrings, single captures become Points.
func WriteGeoJSON(w io.Writer, segments []Segment) error {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(segments))}

	for i, s := range segments {
		if len(s.Captures) == 0 {
			continue
		}

		// GeoJSON positions are [longitude, latitude]
		coords := make([][2]float64, len(s.Captures))
		times := make([]int64, len(s.Captures))
		for j, c := range s.Captures {
			coords[j] = [2]float64{c.Location.Lng, c.Location.Lat}
			times[j] = c.Timestamp.Unix()
		}

		g := geometry{Type: "LineString", Coordinates: coords}
		if len(coords) == 1 {
			g = geometry{Type: "Point", Coordinates: coords[0]}
		}

		fc.Features = append(fc.Features, feature{
			Type:     "Feature",
			Geometry: g,
			Properties: map[string]interface{}{
				"segment":    i + 1,
				"start":      s.Start().UTC().Format(time.RFC3339),
				"end":        s.End().UTC().Format(time.RFC3339),
				"captures":   len(s.Captures),
				"timestamps": times,
			},
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fc); err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}
	return nil
}

// ReadCSV reads captures written by the csv sink (timestamp, lat, lng)
func ReadCSV(r io.Reader) ([]models.Capture, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tsCol, okTS := cols["timestamp"]
	latCol, okLat := cols["lat"]
	lngCol, okLng := cols["lng"]
	if !okTS || !okLat || !okLng {
		return nil, fmt.Errorf("csv header must name timestamp, lat and lng, got %v", header)
	}

	var captures []models.Capture
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := strconv.ParseInt(strings.TrimSpace(row[tsCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp: %w", line, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[latCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid lat: %w", line, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(row[lngCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid lng: %w", line, err)
		}

		captures = append(captures, models.Capture{
			Location:  models.Location{Lat: lat, Lng: lng},
			Timestamp: time.Unix(ts, 0).UTC(),
		})
	}

	return captures, nil
}
