// Package batch resolves capture timestamps for many locations concurrently.
//
// A single failing query never affects the others: its error is logged with
// the query's coordinates, reported as a progress event and kept in the
// outcome's failure list, and the batch carries on.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/1F47E/imagery-dater/pkg/models"
	"github.com/1F47E/imagery-dater/pkg/resolver"
)

// Resolver resolves one query. *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, loc models.Location, month models.Month, radiusM int) (time.Time, error)
}

// Failure is a query that could not be resolved
type Failure struct {
	Query models.Query
	Err   error
}

// Outcome is the result of one batch run.
type Outcome struct {
	RunID     string
	Total     int
	Captures  []models.Capture
	Failures  []Failure
	StartedAt time.Time
	EndedAt   time.Time
}

// Succeeded returns the number of resolved queries
func (o Outcome) Succeeded() int {
	return len(o.Captures)
}

// Partial reports whether some queries failed.
func (o Outcome) Partial() bool {
	return len(o.Failures) > 0
}

// Orchestrator runs a Resolver over a batch of queries under a concurrency bound.
type Orchestrator struct {
	resolver Resolver
	cfg      Config
	progress func(Progress)
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgress registers a callback receiving one event per completed query.
// Calls are serialized; the callback must not block for long.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLogger sets the logger used for batch and failure records.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator after validating cfg
func New(r Resolver, cfg Config, opts ...Option) (*Orchestrator, error) {
	if r == nil {
		return nil, fmt.Errorf("nil resolver")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}

	o := &Orchestrator{
		resolver: r,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run resolves every query and returns the successful captures in input order.
//
// Failed queries end up in Outcome.Failures, never in Captures. The returned
// error is non-nil only when ctx was cancelled; the partial outcome is still
// returned in that case, with unstarted queries recorded as failures.
func (o *Orchestrator) Run(ctx context.Context, queries []models.Query) (Outcome, error) {
	r := &run{
		id:      uuid.NewString(),
		queries: queries,
		slots:   make([]slot, len(queries)),
		tracker: newTracker(len(queries), o.progress),
	}

	out := Outcome{
		RunID:     r.id,
		Total:     len(queries),
		StartedAt: time.Now().UTC(),
	}

	o.logger.Info("batch.started",
		"run_id", r.id,
		"queries", len(queries),
		"mode", string(o.cfg.Mode),
		"concurrency", o.cfg.Concurrency,
		"radius_m", o.cfg.Radius)

	switch o.cfg.Mode {
	case ModeStreaming:
		o.runBounded(ctx, r, 0, len(queries), o.cfg.Concurrency)
	default:
		size := o.cfg.groupSize()
		for start := 0; start < len(queries); start += size {
			end := start + size
			if end > len(queries) {
				end = len(queries)
			}
			limit := end - start
			if limit > o.cfg.Concurrency {
				limit = o.cfg.Concurrency
			}
			// The whole group finishes before the next one starts.
			o.runBounded(ctx, r, start, end, limit)
		}
	}

	out.Captures = make([]models.Capture, 0, len(queries))
	for i, s := range r.slots {
		if s.err != nil {
			out.Failures = append(out.Failures, Failure{Query: queries[i], Err: s.err})
			continue
		}
		out.Captures = append(out.Captures, s.capture)
	}
	out.EndedAt = time.Now().UTC()

	o.logger.Info("batch.finished",
		"run_id", r.id,
		"resolved", len(out.Captures),
		"failed", len(out.Failures),
		"duration", out.EndedAt.Sub(out.StartedAt).String())

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (o *Orchestrator) resolveOne(ctx context.Context, runID string, q models.Query) slot {
	if o.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.QueryTimeout)
		defer cancel()
	}

	ts, err := o.resolver.Resolve(ctx, q.Location, q.Month, o.cfg.Radius)
	if err != nil {
		o.logger.Warn("batch.query_failed",
			"run_id", runID,
			"query", q.ID,
			"lat", q.Location.Lat,
			"lng", q.Location.Lng,
			"month", q.Month.String(),
			"kind", string(resolver.KindOf(err)),
			"error", err.Error())
		return slot{err: err}
	}

	return slot{capture: models.Capture{Location: q.Location, Timestamp: ts.UTC()}}
}
