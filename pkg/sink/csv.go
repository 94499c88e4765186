// Package sink persists resolved captures.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// CSVHeader is the first row of every capture CSV
var CSVHeader = []string{"timestamp", "lat", "lng"}

// WriteCSV writes the captures as timestamp (unix seconds), lat, lng rows
func WriteCSV(w io.Writer, captures []models.Capture) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, c := range captures {
		row := []string{
			strconv.FormatInt(c.Timestamp.Unix(), 10),
			strconv.FormatFloat(c.Location.Lat, 'f', -1, 64),
			strconv.FormatFloat(c.Location.Lng, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCSVFile creates path (and its directory) and writes the captures to it
func WriteCSVFile(path string, captures []models.Capture) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := WriteCSV(file, captures); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
