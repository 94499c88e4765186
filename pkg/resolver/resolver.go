// Package resolver narrows a coarse capture month down to the capture
// timestamp of the imagery at a location, to the second.
//
// It bisects the search window against a Prober that answers whether any
// imagery exists inside a time range. The answer is assumed to be monotonic
// over the window: false before the capture instant, true from it onward.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// Prober answers whether imagery exists within radiusM meters of loc
// with a capture time in [start, end].
type Prober interface {
	Probe(ctx context.Context, loc models.Location, radiusM int, start, end time.Time) (bool, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, loc models.Location, radiusM int, start, end time.Time) (bool, error)

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context, loc models.Location, radiusM int, start, end time.Time) (bool, error) {
	return f(ctx, loc, radiusM, start, end)
}

// Resolution is a successful resolution with the number of oracle calls it took.
type Resolution struct {
	Timestamp time.Time
	Calls     int
}

// Resolver performs the bisection. It holds no per-query state and is safe
// for concurrent use as long as its Prober is.
type Resolver struct {
	prober      Prober
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCallTimeout bounds every single oracle call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.callTimeout = d }
}

// WithLogger sets the logger used for per-call debug records.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver backed by the given prober
func New(p Prober, opts ...Option) *Resolver {
	r := &Resolver{
		prober: p,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the capture timestamp of the imagery at loc, given the month it was captured in.
func (r *Resolver) Resolve(ctx context.Context, loc models.Location, month models.Month, radiusM int) (time.Time, error) {
	res, err := r.ResolveDetailed(ctx, loc, month, radiusM)
	if err != nil {
		return time.Time{}, err
	}
	return res.Timestamp, nil
}

// ResolveDetailed is Resolve, also reporting how many oracle calls were made.
func (r *Resolver) ResolveDetailed(ctx context.Context, loc models.Location, month models.Month, radiusM int) (Resolution, error) {
	win := InitialWindow(month)
	initialEnd := win.End
	calls := 0

	fail := func(kind ErrorKind, err error) (Resolution, error) {
		return Resolution{}, &Error{Location: loc, Month: month, Kind: kind, Calls: calls, Err: err}
	}

	if month.IsZero() || month.Month < time.January || month.Month > time.December || !win.Valid() {
		return fail(KindInvalidWindow, nil)
	}

	for {
		mid := win.Midpoint()

		if win.Width() <= Precision {
			// The right edge never moved: the oracle never answered true.
			if initialEnd.Sub(mid) <= Precision {
				return fail(KindResolutionFailed, nil)
			}
			return Resolution{Timestamp: mid, Calls: calls}, nil
		}

		if err := ctx.Err(); err != nil {
			return fail(KindOracleCallFailed, err)
		}

		found, err := r.probe(ctx, loc, radiusM, win.Start, mid)
		calls++
		if err != nil {
			return fail(KindOracleCallFailed, err)
		}

		r.logger.Debug("resolver.probe",
			"lat", loc.Lat, "lng", loc.Lng,
			"start", win.Start, "end", mid, "found", found)

		if found {
			win.End = mid
		} else {
			win.Start = mid
		}
	}
}

func (r *Resolver) probe(ctx context.Context, loc models.Location, radiusM int, start, end time.Time) (bool, error) {
	if r.callTimeout <= 0 {
		return r.prober.Probe(ctx, loc, radiusM, start, end)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.prober.Probe(callCtx, loc, radiusM, start, end)
}
