// Package worker mirrors new source rows into the index.
//
// Each cycle loads the checkpoint, fetches rows with a key above it, ingests
// all of them inside one index Write and, once that commits, advances the
// checkpoint to the largest key seen. A failed cycle leaves both the index
// and the checkpoint as they were; the next cycle starts over from there.
package worker

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/metrics"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

// Options tunes a Worker.
type Options struct {
	// Query selects rows whose key is greater than its single parameter.
	Query string
	// KeyColumn is the result column holding the row key.
	KeyColumn string
	// FetchSize bounds how many rows are buffered before being staged.
	FetchSize int
	// Interval is the pause between cycles.
	Interval time.Duration
	// Retry governs source connection attempts.
	Retry errors.RetryConfig
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	Rows    int
	LastKey int64
}

// Worker runs sync cycles against one engine.
type Worker struct {
	engine      *index.Engine
	source      Source
	schema      schema.Schema
	checkpoints *CheckpointStore
	opts        Options
	status      *Status
}

// New creates a Worker. Zero FetchSize defaults to 1000; zero Interval to a
// minute.
func New(engine *index.Engine, source Source, s schema.Schema, checkpoints *CheckpointStore, opts Options) *Worker {
	if opts.FetchSize <= 0 {
		opts.FetchSize = 1000
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Retry.RetryIf == nil {
		opts.Retry.RetryIf = errors.IsRetryable
	}
	return &Worker{
		engine:      engine,
		source:      source,
		schema:      s,
		checkpoints: checkpoints,
		opts:        opts,
		status:      NewStatus(),
	}
}

// FromConfig wires a Worker from configuration.
func FromConfig(cfg *config.Config, engine *index.Engine, s schema.Schema) (*Worker, error) {
	src, err := NewSource(cfg.Datasource)
	if err != nil {
		return nil, err
	}

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Datasource.ConnectRetries
	retry.Jitter = true

	return New(engine, src, s, NewCheckpointStore(cfg.StateFile), Options{
		Query:     cfg.Datasource.Query,
		KeyColumn: cfg.Datasource.Key,
		FetchSize: cfg.Datasource.FetchSize,
		Interval:  cfg.PollInterval(),
		Retry:     retry,
	}), nil
}

// Status returns the worker's progress tracker.
func (w *Worker) Status() *Status { return w.status }

// Prepare resets the checkpoint when rebuilding, or when the index was just
// created and so holds none of the rows the checkpoint claims.
func (w *Worker) Prepare(rebuild bool) error {
	if !rebuild && !w.engine.Created() {
		return nil
	}
	if err := w.checkpoints.Reset(); err != nil {
		return err
	}
	slog.Info("checkpoint_reset",
		slog.String("path", w.checkpoints.Path()),
		slog.Bool("rebuild", rebuild))
	return nil
}

// Run executes cycles until ctx is cancelled. Cycle failures are logged and
// never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("sync_worker_started",
		slog.String("source", w.source.Name()),
		slog.Duration("interval", w.opts.Interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync_worker_stopped")
			return nil
		case <-timer.C:
		}

		_, _ = w.RunOnce(ctx)
		timer.Reset(w.opts.Interval)
	}
}

// RunOnce executes a single cycle. The error is returned for callers that
// want it; it has already been logged and counted.
func (w *Worker) RunOnce(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	w.status.begin()

	res, err := w.cycle(ctx)
	elapsed := time.Since(start)
	w.status.finish(res, err, time.Now())

	switch {
	case err != nil:
		slog.Error("sync_cycle_failed",
			slog.String("code", errors.GetCode(err)),
			slog.String("error", err.Error()),
			slog.Duration("duration", elapsed))
		metrics.ObserveCycle(metrics.ResultFailed, errors.GetCode(err), 0, elapsed)
	case res.Rows == 0:
		slog.Debug("sync_cycle_empty",
			slog.Int64("last_key", res.LastKey),
			slog.Duration("duration", elapsed))
		metrics.ObserveCycle(metrics.ResultEmpty, "", 0, elapsed)
	default:
		slog.Info("sync_cycle_complete",
			slog.Int("rows", res.Rows),
			slog.Int64("last_key", res.LastKey),
			slog.Duration("duration", elapsed))
		metrics.ObserveCycle(metrics.ResultOK, "", res.Rows, elapsed)
		metrics.CheckpointKey.Set(float64(res.LastKey))
	}
	return res, err
}

func (w *Worker) cycle(ctx context.Context) (CycleResult, error) {
	cp, err := w.checkpoints.Load()
	if err != nil {
		return CycleResult{}, err
	}
	slog.Debug("sync_cycle_started", slog.Int64("last_key", cp.LastKey))

	db, err := errors.RetryWithResult(ctx, w.opts.Retry, func() (*sql.DB, error) {
		return w.source.Connect(ctx)
	})
	if err != nil {
		return CycleResult{LastKey: cp.LastKey}, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, w.opts.Query, cp.LastKey)
	if err != nil {
		return CycleResult{LastKey: cp.LastKey}, errors.New(errors.ErrCodeSourceFetch, "fetch query failed", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return CycleResult{LastKey: cp.LastKey}, errors.New(errors.ErrCodeSourceStream, "failed to read result columns", err)
	}
	mapper, err := newRowMapper(columns, w.schema, w.opts.KeyColumn)
	if err != nil {
		return CycleResult{LastKey: cp.LastKey}, err
	}

	// The first page is read before taking the index lock, so a cycle with
	// nothing new never blocks searches.
	maxKey := cp.LastKey
	page, err := w.fetchPage(rows, mapper, make([]index.Document, 0, w.opts.FetchSize), &maxKey)
	if err != nil {
		return CycleResult{LastKey: cp.LastKey}, err
	}
	if len(page) == 0 {
		return CycleResult{LastKey: cp.LastKey}, nil
	}
	if err := w.checkCatalogue(w.engine.Catalogue()); err != nil {
		return CycleResult{LastKey: cp.LastKey}, err
	}

	n, err := index.Write(w.engine, func(wr *index.Writer) (int, error) {
		return w.ingest(wr, rows, mapper, page, &maxKey)
	})
	if err != nil {
		return CycleResult{LastKey: cp.LastKey}, err
	}

	if err := w.checkpoints.Save(Checkpoint{LastKey: maxKey}); err != nil {
		// The rows are committed; re-ingesting them next cycle overwrites
		// the same document IDs.
		return CycleResult{Rows: n, LastKey: cp.LastKey}, err
	}
	return CycleResult{Rows: n, LastKey: maxKey}, nil
}

// fetchPage refills page with up to FetchSize documents from rows. An empty
// page means the cursor is drained.
func (w *Worker) fetchPage(rows *sql.Rows, m *rowMapper, page []index.Document, maxKey *int64) ([]index.Document, error) {
	page = page[:0]
	for len(page) < w.opts.FetchSize && rows.Next() {
		doc, key, err := m.scan(rows)
		if err != nil {
			return nil, err
		}
		if key > *maxKey {
			*maxKey = key
		}
		page = append(page, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeSourceStream, "row stream failed", err)
	}
	return page, nil
}

// ingest stages page and every page still left on the cursor, holding at
// most one page of documents at a time.
func (w *Worker) ingest(wr *index.Writer, rows *sql.Rows, m *rowMapper, page []index.Document, maxKey *int64) (int, error) {
	for len(page) > 0 {
		for _, d := range page {
			if err := wr.Add(d); err != nil {
				return 0, err
			}
		}
		var err error
		if page, err = w.fetchPage(rows, m, page, maxKey); err != nil {
			return 0, err
		}
	}
	return wr.Len(), nil
}

// checkCatalogue fails when a schema field is missing from the index.
func (w *Worker) checkCatalogue(cat index.Catalogue) error {
	for _, f := range w.schema.Fields() {
		if _, ok := cat.Lookup(f.Name); !ok {
			return errors.Newf(errors.ErrCodeFieldNotFound, "field `%s` not found in index", f.Name).
				WithSuggestion("Run with --rebuild after changing the schema")
		}
	}
	return nil
}
