package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/1F47E/imagery-dater/pkg/models"
)

// slot holds the outcome of the query at the same index.
// Each slot is written by exactly one goroutine.
type slot struct {
	capture models.Capture
	err     error
}

type run struct {
	id      string
	queries []models.Query
	slots   []slot
	tracker *tracker
}

// runBounded resolves queries[start:end] with at most limit in flight and
// returns once all of them have completed.
func (o *Orchestrator) runBounded(ctx context.Context, r *run, start, end, limit int) {
	var g errgroup.Group
	g.SetLimit(limit)

	for i := start; i < end; i++ {
		q := r.queries[i]

		if err := ctx.Err(); err != nil {
			r.slots[i] = slot{err: fmt.Errorf("query %s not started: %w", q.ID, err)}
			r.tracker.complete(q, r.slots[i].err)
			continue
		}

		g.Go(func() error {
			r.slots[i] = o.resolveOne(ctx, r.id, q)
			r.tracker.complete(q, r.slots[i].err)
			// Failures stay in the slot; returning them would only be ignored.
			return nil
		})
	}

	_ = g.Wait()
}

// Progress is emitted once per completed query, successful or not.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	Query     models.Query
	Err       error
}

// Done reports whether every query of the batch has completed
func (p Progress) Done() bool {
	return p.Completed >= p.Total
}

// Fraction returns Completed/Total in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}

// tracker owns the shared completion counters.
type tracker struct {
	mu        sync.Mutex
	completed int
	failed    int
	total     int
	report    func(Progress)
}

func newTracker(total int, report func(Progress)) *tracker {
	return &tracker{total: total, report: report}
}

// complete counts one finished query and reports it while still holding the
// lock, so consumers see Completed strictly increasing.
func (t *tracker) complete(q models.Query, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	if err != nil {
		t.failed++
	}
	if t.report != nil {
		t.report(Progress{
			Completed: t.completed,
			Failed:    t.failed,
			Total:     t.total,
			Query:     q,
			Err:       err,
		})
	}
}
