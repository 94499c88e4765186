package rtree

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// IndexData represents the serializable form of the capture index
type IndexData struct {
	Captures []models.Capture
	Count    int64
}

// SaveToFile saves the index to a gob file
func (g *CaptureIndex) SaveToFile(filename string) error {
	data := IndexData{
		Captures: g.All(),
		Count:    g.Count(),
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return nil
}

// LoadFromFile replaces the index contents with the captures of a gob file
func (g *CaptureIndex) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data IndexData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}

	// Clear existing index and rebuild
	g.Clear()
	g.IndexCaptures(data.Captures)

	return nil
}

// MergeFile loads an existing index file, if any, adds the captures it does
// not hold yet and saves it back. It returns the number of captures added.
func (g *CaptureIndex) MergeFile(filename string, captures []models.Capture) (int, error) {
	if _, err := os.Stat(filename); err == nil {
		if err := g.LoadFromFile(filename); err != nil {
			return 0, err
		}
	}

	type key struct {
		lat, lng float64
		ts       int64
	}
	keyOf := func(c models.Capture) key {
		return key{c.Location.Lat, c.Location.Lng, c.Timestamp.Unix()}
	}

	seen := make(map[key]struct{})
	for _, c := range g.All() {
		seen[keyOf(c)] = struct{}{}
	}

	fresh := make([]models.Capture, 0, len(captures))
	for _, c := range captures {
		k := keyOf(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, c)
	}

	g.IndexCaptures(fresh)
	if err := g.SaveToFile(filename); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
