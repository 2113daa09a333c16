package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

var (
	// ErrEmptyResult marks a query that completed without any records.
	ErrEmptyResult = errors.New("no records found")
	// ErrNoQueries is the batch-level failure for an empty batch.
	ErrNoQueries = errors.New("no keywords given")
)

// Source is a marketplace the runner can query.
type Source interface {
	SearchListing(ctx context.Context, query string, limit int) (models.Listing, error)
	FetchDetail(ctx context.Context, input string) (models.DetailRecord, error)
}

// Runner executes a batch of queries, emitting progress, result and error
// events for each, then the aggregate.
type Runner struct {
	src      Source
	sink     Sink
	limit    int
	workers  int
	exporter *Exporter

	// mu serializes event emission with updates to the aggregate.
	mu      sync.Mutex
	sinkErr error
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithWorkers runs up to n queries at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithExporter also hands every successful record to e.
func WithExporter(e *Exporter) RunnerOption {
	return func(r *Runner) {
		r.exporter = e
	}
}

// NewRunner builds a sequential runner reporting on sink.
func NewRunner(src Source, sink Sink, limit int, opts ...RunnerOption) *Runner {
	r := &Runner{src: src, sink: sink, limit: limit, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes queries and returns the aggregate. A failing query is
// reported and skipped; the returned error is only set for batch-level
// failures or when the sink could not be written.
func (r *Runner) Run(ctx context.Context, queries []models.Query) (models.RunSummary, error) {
	summary := &models.RunSummary{
		StartTime: time.Now(),
		Queries:   len(queries),
		Results:   []models.Record{},
	}

	if len(queries) == 0 {
		r.emit(ctx, BatchError(ErrNoQueries))
		return *summary, ErrNoQueries
	}

	workers := min(r.workers, len(queries))
	slog.Info("starting batch",
		slog.Int("queries", len(queries)),
		slog.Int("workers", workers),
		slog.Int("limit", r.limit),
	)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r.runQuery(ctx, i+1, len(queries), queries[i], summary)
			}
		}()
	}
	for i := range queries {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary.EndTime = time.Now()
	summary.RecordCount = len(summary.Results)
	r.emit(ctx, Complete(summary.Results))

	slog.Info("batch finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("records", summary.RecordCount),
		slog.Duration("elapsed", summary.EndTime.Sub(summary.StartTime)),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinkErr != nil {
		return *summary, fmt.Errorf("emit events: %w", r.sinkErr)
	}
	return *summary, nil
}

func (r *Runner) runQuery(ctx context.Context, current, total int, q models.Query, summary *models.RunSummary) {
	r.emit(ctx, Progress(current, total, q.Text))

	records, data, warnings, err := r.execute(ctx, q)
	if err == nil && len(records) == 0 {
		err = fmt.Errorf("%w for %q", ErrEmptyResult, q.Text)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		summary.Failed++
		slog.Warn("query failed", slog.String("keyword", q.Text), slog.Any("error", err))
		r.emitLocked(ctx, QueryError(q.Text, err))
		return
	}

	summary.Succeeded++
	summary.Results = append(summary.Results, records...)
	r.emitLocked(ctx, Result(q.Text, data, warnings))

	if r.exporter != nil {
		if err := r.exporter.Process(records...); err != nil {
			slog.Error("export records", slog.String("keyword", q.Text), slog.Any("error", err))
		}
	}
}

func (r *Runner) execute(ctx context.Context, q models.Query) (records []models.Record, data any, warnings []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			records, data, warnings = nil, nil, nil
			err = fmt.Errorf("query %q panicked: %v", q.Text, p)
		}
	}()

	if q.Mode == models.ModeDetail {
		rec, err := r.src.FetchDetail(ctx, q.Text)
		if err != nil {
			return nil, nil, nil, err
		}
		return []models.Record{rec}, rec, nil, nil
	}

	listing, err := r.src.SearchListing(ctx, q.Text, r.limit)
	if err != nil {
		return nil, nil, nil, err
	}
	records = make([]models.Record, 0, len(listing.Records))
	for _, rec := range listing.Records {
		records = append(records, rec)
	}
	return records, listing.Records, listing.Warnings, nil
}

func (r *Runner) emit(ctx context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(ctx, e)
}

func (r *Runner) emitLocked(ctx context.Context, e Event) {
	if err := r.sink.Emit(ctx, e); err != nil {
		slog.Error("emit event", slog.String("type", string(e.Type)), slog.Any("error", err))
		if r.sinkErr == nil {
			r.sinkErr = err
		}
	}
}
