package resolver

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/1F47E/imagery-dater/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLocation = models.Location{Lat: 48.8566, Lng: 2.3522}

// stepProber answers true once the probed range reaches the boundary.
type stepProber struct {
	boundary time.Time
	calls    int
}

func (p *stepProber) Probe(_ context.Context, _ models.Location, _ int, _, end time.Time) (bool, error) {
	p.calls++
	return !end.Before(p.boundary), nil
}

func maxCalls(w Window) int {
	return int(math.Ceil(math.Log2(w.Width().Seconds()))) + 1
}

func TestInitialWindow(t *testing.T) {
	w := InitialWindow(models.Month{Year: 2021, Month: time.June})

	assert.Equal(t, time.Date(2021, time.May, 31, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2021, time.July, 3, 0, 0, 0, 0, time.UTC), w.End)
	assert.True(t, w.Valid())
	assert.Equal(t, 33*24*time.Hour, w.Width())
}

func TestWindowMidpoint(t *testing.T) {
	base := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name  string
		width time.Duration
		want  time.Duration
	}{
		{"even", 10 * time.Second, 5 * time.Second},
		{"odd floors", 3 * time.Second, 1 * time.Second},
		{"one second", time.Second, 0},
		{"sub second", 500 * time.Millisecond, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := Window{Start: base, End: base.Add(tc.width)}
			assert.Equal(t, base.Add(tc.want), w.Midpoint())
		})
	}
}

func TestResolveConvergence(t *testing.T) {
	month := models.Month{Year: 2021, Month: time.June}
	win := InitialWindow(month)

	testCases := []struct {
		name     string
		boundary time.Time
	}{
		{"mid month", time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC)},
		{"odd second", time.Date(2021, time.June, 7, 13, 42, 17, 0, time.UTC)},
		{"first day", time.Date(2021, time.June, 1, 0, 0, 1, 0, time.UTC)},
		{"just after window start", win.Start.Add(2 * time.Second)},
		{"just before window end", win.End.Add(-5 * time.Second)},
		{"previous month tail", time.Date(2021, time.May, 31, 18, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &stepProber{boundary: tc.boundary}
			r := New(p)

			res, err := r.ResolveDetailed(context.Background(), testLocation, month, 30)
			require.NoError(t, err)

			diff := res.Timestamp.Sub(tc.boundary)
			assert.LessOrEqual(t, diff.Abs(), time.Second, "resolved %s for boundary %s", res.Timestamp, tc.boundary)
			assert.LessOrEqual(t, p.calls, maxCalls(win))
			assert.Equal(t, p.calls, res.Calls)
		})
	}
}

func TestResolveWindowContainingBoundary(t *testing.T) {
	boundary := time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC)
	p := ProberFunc(func(_ context.Context, _ models.Location, radius int, start, end time.Time) (bool, error) {
		assert.Equal(t, 30, radius)
		return !start.After(boundary) && !end.Before(boundary), nil
	})

	month, err := models.ParseMonth("2021-06")
	require.NoError(t, err)

	ts, err := New(p).Resolve(context.Background(), testLocation, month, 30)
	require.NoError(t, err)
	assert.WithinDuration(t, boundary, ts, time.Second)
	assert.Equal(t, time.UTC, ts.Location())
}

func TestResolveNeverFound(t *testing.T) {
	month := models.Month{Year: 2019, Month: time.February}
	win := InitialWindow(month)

	calls := 0
	p := ProberFunc(func(context.Context, models.Location, int, time.Time, time.Time) (bool, error) {
		calls++
		return false, nil
	})

	_, err := New(p).Resolve(context.Background(), testLocation, month, 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.NotErrorIs(t, err, ErrOracleCallFailed)
	assert.True(t, IsKind(err, KindResolutionFailed))
	assert.LessOrEqual(t, calls, maxCalls(win))

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, testLocation, re.Location)
	assert.Equal(t, month, re.Month)
	assert.Equal(t, calls, re.Calls)
}

func TestResolveAlwaysFoundReturnsWindowStart(t *testing.T) {
	month := models.Month{Year: 2021, Month: time.June}
	p := ProberFunc(func(context.Context, models.Location, int, time.Time, time.Time) (bool, error) {
		return true, nil
	})

	ts, err := New(p).Resolve(context.Background(), testLocation, month, 30)
	require.NoError(t, err)
	assert.Equal(t, InitialWindow(month).Start, ts)
}

func TestResolveOracleError(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	p := ProberFunc(func(context.Context, models.Location, int, time.Time, time.Time) (bool, error) {
		calls++
		if calls == 3 {
			return false, boom
		}
		return false, nil
	})

	_, err := New(p).Resolve(context.Background(), testLocation, models.Month{Year: 2021, Month: time.June}, 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracleCallFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, KindOracleCallFailed, KindOf(err))
	assert.Equal(t, 3, calls, "no retry after a failed call")
	assert.Contains(t, err.Error(), "48.856600, 2.352200")
}

func TestResolveCancelledContext(t *testing.T) {
	p := &stepProber{boundary: time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(p).Resolve(ctx, testLocation, models.Month{Year: 2021, Month: time.June}, 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrOracleCallFailed)
	assert.Equal(t, 0, p.calls)
}

func TestResolveCallTimeout(t *testing.T) {
	p := ProberFunc(func(ctx context.Context, _ models.Location, _ int, _, _ time.Time) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})

	r := New(p, WithCallTimeout(10*time.Millisecond))
	_, err := r.Resolve(context.Background(), testLocation, models.Month{Year: 2021, Month: time.June}, 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolveInvalidMonth(t *testing.T) {
	for _, m := range []models.Month{{}, {Year: 2021, Month: 13}} {
		p := &stepProber{boundary: time.Date(2021, time.June, 15, 0, 0, 0, 0, time.UTC)}
		_, err := New(p).Resolve(context.Background(), testLocation, m, 30)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidWindow)
		assert.Equal(t, 0, p.calls)
	}
}

func BenchmarkResolve(b *testing.B) {
	month := models.Month{Year: 2021, Month: time.June}
	p := &stepProber{boundary: time.Date(2021, time.June, 15, 8, 30, 0, 0, time.UTC)}
	r := New(p)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Resolve(context.Background(), testLocation, month, 30)
	}
}
