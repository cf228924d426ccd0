package worker

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

const fetchQuery = "SELECT id, title, stock, note FROM items WHERE id > ? ORDER BY id"

func itemSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldDefinition{
		{Name: "id", Column: "id", DataType: schema.Int(true)},
		{Name: "title", Column: "title", DataType: schema.Text()},
		{Name: "stock", Column: "stock", DataType: schema.UInt(true)},
		{Name: "note", Column: "note", DataType: schema.Text()},
	})
	require.NoError(t, err)
	return s
}

type fixture struct {
	db     *sql.DB
	engine *index.Engine
	store  *CheckpointStore
	worker *Worker
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "source.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, title TEXT, stock INTEGER, note TEXT)`)
	require.NoError(t, err)

	s := itemSchema(t)
	engine, err := index.Open(s, "", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	store := NewCheckpointStore(filepath.Join(dir, "state.yaml"))
	w := New(engine, &SQLiteSource{Path: dbPath}, s, store, Options{
		Query:     fetchQuery,
		KeyColumn: "id",
		FetchSize: 2,
		Interval:  10 * time.Millisecond,
		Retry:     errors.RetryConfig{MaxRetries: 0},
	})
	return &fixture{db: db, engine: engine, store: store, worker: w, dir: dir}
}

func (f *fixture) insert(t *testing.T, id int64, title any, stock any, note any) {
	t.Helper()
	_, err := f.db.Exec(`INSERT INTO items (id, title, stock, note) VALUES (?, ?, ?, ?)`, id, title, stock, note)
	require.NoError(t, err)
}

func (f *fixture) hits(t *testing.T) map[string]index.Hit {
	t.Helper()
	hits, err := f.engine.Search(context.Background(), bleve.NewMatchAllQuery(), 100)
	require.NoError(t, err)
	out := make(map[string]index.Hit, len(hits))
	for _, h := range hits {
		out[h.ID] = h
	}
	return out
}

func (f *fixture) lastKey(t *testing.T) int64 {
	t.Helper()
	cp, err := f.store.Load()
	require.NoError(t, err)
	return cp.LastKey
}

func TestRunOnce_IngestsRowsAndAdvancesCheckpoint(t *testing.T) {
	// Given: five source rows, more than one fetch page
	f := newFixture(t)
	f.insert(t, 3, "  Hello  ", 7, "first")
	f.insert(t, 1, "Apple", 2, nil)
	f.insert(t, 9, "Pear", 0, "last")
	f.insert(t, 4, "Plum", 1, "x")
	f.insert(t, 5, "Fig", 4, "y")

	// When: one cycle runs
	res, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	// Then: every row is visible and the checkpoint is the max key
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, int64(9), res.LastKey)
	assert.Equal(t, int64(9), f.lastKey(t))

	hits := f.hits(t)
	require.Len(t, hits, 5)

	// And: text is trimmed
	assert.Equal(t, "Hello", hits["3"].Fields["title"])
	assert.Equal(t, float64(7), hits["3"].Fields["stock"])

	// And: NULL leaves the field unset
	assert.NotContains(t, hits["1"].Fields, "note")
	assert.Equal(t, "Apple", hits["1"].Fields["title"])
}

func TestRunOnce_NoNewRowsIsNoop(t *testing.T) {
	f := newFixture(t)
	f.insert(t, 1, "a", 1, "n")
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	// When: a second cycle finds nothing new
	res, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	// Then: checkpoint and index are unchanged
	assert.Zero(t, res.Rows)
	assert.Equal(t, int64(1), f.lastKey(t))
	assert.Len(t, f.hits(t), 1)
}

func TestRunOnce_EmptySourceLeavesCheckpointAbsent(t *testing.T) {
	f := newFixture(t)

	res, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Equal(t, NoCheckpoint, f.lastKey(t))
	assert.NoFileExists(t, f.store.Path())
}

// holdIndex keeps the engine lock inside a Read until the returned func is
// called.
func holdIndex(t *testing.T, e *index.Engine) (release func()) {
	t.Helper()
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = index.Read(e, func(*index.Reader) (struct{}, error) {
			close(held)
			<-done
			return struct{}{}, nil
		})
	}()
	<-held

	var once sync.Once
	release = func() { once.Do(func() { close(done) }) }
	t.Cleanup(release)
	return release
}

func TestRunOnce_EmptyCycleDoesNotWaitForIndex(t *testing.T) {
	// Given: a committed row and a search holding the index
	f := newFixture(t)
	f.insert(t, 1, "a", 1, "n")
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	release := holdIndex(t, f.engine)
	defer release()

	// When: a cycle finds nothing new
	done := make(chan error, 1)
	go func() {
		_, err := f.worker.RunOnce(context.Background())
		done <- err
	}()

	// Then: it completes while the index is still held
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("empty cycle waited for the index lock")
	}
}

func TestRunOnce_NewRowsWaitForIndex(t *testing.T) {
	// Given: a search holding the index and a new source row
	f := newFixture(t)
	release := holdIndex(t, f.engine)
	f.insert(t, 1, "a", 1, "n")

	// When: a cycle runs
	done := make(chan error, 1)
	go func() {
		_, err := f.worker.RunOnce(context.Background())
		done <- err
	}()

	// Then: it commits only once the search is done
	select {
	case <-done:
		t.Fatal("cycle committed while the index was held")
	case <-time.After(100 * time.Millisecond):
	}
	release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not finish after the index was released")
	}
	assert.Equal(t, int64(1), f.lastKey(t))
}

func TestRunOnce_IncrementalCycles(t *testing.T) {
	f := newFixture(t)
	f.insert(t, 1, "a", 1, "n")
	f.insert(t, 2, "b", 1, "n")
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	f.insert(t, 3, "c", 1, "n")
	res, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	// Only the new row is fetched
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, int64(3), f.lastKey(t))
	assert.Len(t, f.hits(t), 3)
}

func TestRunOnce_BadRowRollsBackWholeBatch(t *testing.T) {
	// Given: a committed row then a batch with one unconvertible value
	f := newFixture(t)
	f.insert(t, 1, "ok", 1, "n")
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	f.insert(t, 2, "fine", 3, "n")
	f.insert(t, 3, "fine", 4, "n")
	f.insert(t, 4, "broken", -5, "n")

	// When: the cycle runs
	_, err = f.worker.RunOnce(context.Background())

	// Then: nothing from the batch is visible and the checkpoint stalls
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidValue))
	assert.Len(t, f.hits(t), 1)
	assert.Equal(t, int64(1), f.lastKey(t))
}

func TestRunOnce_FieldMissingFromCatalogueAbortsBatch(t *testing.T) {
	// Given: an index built without the note field
	f := newFixture(t)
	narrow, err := schema.New([]schema.FieldDefinition{
		{Name: "id", Column: "id", DataType: schema.Int(true)},
		{Name: "title", Column: "title", DataType: schema.Text()},
		{Name: "stock", Column: "stock", DataType: schema.UInt(true)},
	})
	require.NoError(t, err)
	path := filepath.Join(f.dir, "index")
	e, err := index.Open(narrow, path, false)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = index.Open(itemSchema(t), path, false)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	w := New(e, f.worker.source, itemSchema(t), f.store, f.worker.opts)
	f.insert(t, 1, "a", 1, "n")

	// When: the cycle runs
	_, err = w.RunOnce(context.Background())

	// Then: it fails with field-not-found and nothing is committed
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFieldNotFound))
	n, err := e.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, NoCheckpoint, f.lastKey(t))
}

func TestRunOnce_FetchErrorStalls(t *testing.T) {
	f := newFixture(t)
	f.worker.opts.Query = "SELECT * FROM missing_table WHERE id > ?"

	_, err := f.worker.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceFetch))
	assert.Equal(t, NoCheckpoint, f.lastKey(t))
}

func TestRunOnce_KeyColumnMissing(t *testing.T) {
	f := newFixture(t)
	f.insert(t, 1, "a", 1, "n")
	f.worker.opts.Query = "SELECT title FROM items WHERE id > ?"

	_, err := f.worker.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key column `id` missing")
	assert.Empty(t, f.hits(t))
}

type failingSource struct{ calls int }

func (s *failingSource) Name() string { return "failing" }

func (s *failingSource) Connect(context.Context) (*sql.DB, error) {
	s.calls++
	return nil, errors.Newf(errors.ErrCodeSourceConnect, "connection refused")
}

func TestRunOnce_ConnectRetriedThenFails(t *testing.T) {
	f := newFixture(t)
	src := &failingSource{}
	w := New(f.engine, src, itemSchema(t), f.store, Options{
		Query:     fetchQuery,
		KeyColumn: "id",
		Retry:     errors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})

	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceConnect))
	assert.Equal(t, 3, src.calls)
}

func TestPrepare_RebuildDiscardsCheckpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(Checkpoint{LastKey: 42}))

	// A fresh in-memory engine counts as created, so the checkpoint goes
	require.NoError(t, f.worker.Prepare(false))
	assert.Equal(t, NoCheckpoint, f.lastKey(t))

	require.NoError(t, f.store.Save(Checkpoint{LastKey: 42}))
	require.NoError(t, f.worker.Prepare(true))
	assert.Equal(t, NoCheckpoint, f.lastKey(t))
}

func TestPrepare_KeepsCheckpointForExistingIndex(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "index")
	e, err := index.Open(itemSchema(t), path, false)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	e, err = index.Open(itemSchema(t), path, false)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	require.NoError(t, f.store.Save(Checkpoint{LastKey: 42}))
	w := New(e, f.worker.source, itemSchema(t), f.store, f.worker.opts)
	require.NoError(t, w.Prepare(false))
	assert.Equal(t, int64(42), f.lastKey(t))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.insert(t, 1, "a", 1, "n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		cp, err := f.store.Load()
		return err == nil && cp.LastKey == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	store := NewCheckpointStore(filepath.Join(t.TempDir(), "nested", "state.yaml"))

	cp, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), cp.LastKey)

	require.NoError(t, store.Save(Checkpoint{LastKey: -7}))
	cp, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(-7), cp.LastKey)

	require.NoError(t, store.Reset())
	require.NoError(t, store.Reset())
	cp, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, NoCheckpoint, cp.LastKey)
}
