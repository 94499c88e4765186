package resolver

import (
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
)

const (
	// Precision is the width at which bisection stops.
	Precision = time.Second

	windowLead  = 24 * time.Hour
	windowTrail = 32 * 24 * time.Hour
)

// Window is the closed time range still being searched.
type Window struct {
	Start time.Time
	End   time.Time
}

// InitialWindow spans one day before the start of the month to 32 days after it,
// so the boundary of a capture in that month always lies inside.
func InitialWindow(m models.Month) Window {
	start := m.Start()
	return Window{
		Start: start.Add(-windowLead),
		End:   start.Add(windowTrail),
	}
}

// Width returns End - Start
func (w Window) Width() time.Duration {
	return w.End.Sub(w.Start)
}

// Midpoint returns Start plus half the width, floored to whole seconds.
func (w Window) Midpoint() time.Time {
	secs := int64(w.Width() / time.Second)
	return w.Start.Add(time.Duration(secs/2) * time.Second)
}

// Valid reports whether Start <= End
func (w Window) Valid() bool {
	return !w.Start.After(w.End)
}
