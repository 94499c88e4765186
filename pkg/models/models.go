package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f, %.6f", l.Lat, l.Lng)
}

// Month is the coarse capture period reported for a location (e.g. "2021-06")
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" hint. Single digit months are accepted.
func ParseMonth(s string) (Month, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Month{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Month{}, fmt.Errorf("invalid year in %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Month{}, fmt.Errorf("invalid month in %q: %w", s, err)
	}
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("invalid month in %q: out of range", s)
	}

	return Month{Year: year, Month: time.Month(month)}, nil
}

// Start returns the first instant of the month in UTC
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether the month was never set
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Query is a single location to date, as read from an input source
type Query struct {
	ID       string   `json:"id"`
	Location Location `json:"location"`
	Month    Month    `json:"-"`
}

// Capture is a location with its resolved capture timestamp
type Capture struct {
	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location
	TopRight   Location
}

// Contains reports whether the location lies inside the box, edges included
func (b BoundingBox) Contains(l Location) bool {
	return l.Lat >= b.BottomLeft.Lat && l.Lat <= b.TopRight.Lat &&
		l.Lng >= b.BottomLeft.Lng && l.Lng <= b.TopRight.Lng
}
