// Package index owns the bleve index that mirrors the datasource.
//
// All access goes through Read and Write, which serialize on a single mutex.
// Write runs its callback against a fresh batch and commits it only when the
// callback succeeds, so a cycle's documents become visible all at once or not
// at all.
package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/gofrs/flock"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

const indexMetaFile = "index_meta.json"

// Engine is the single owner of a bleve index.
type Engine struct {
	mu sync.Mutex

	idx       bleve.Index
	lock      *flock.Flock
	path      string
	catalogue Catalogue
	created   bool
	closed    bool
}

// Open opens the index at path, creating it if it does not exist. With
// create set, any existing index is removed first. An empty path gives an
// in-memory index.
func Open(s schema.Schema, path string, create bool) (*Engine, error) {
	m, err := buildMapping(s)
	if err != nil {
		return nil, errors.New(errors.ErrCodeIndexOpen, "failed to build index mapping", err)
	}

	e := &Engine{path: path}

	if path == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, errors.New(errors.ErrCodeIndexOpen, "failed to create in-memory index", err)
		}
		e.idx = idx
		e.created = true
	} else {
		if err := e.openDisk(m, create); err != nil {
			return nil, err
		}
	}

	cat, missing := resolveCatalogue(e.idx.Mapping(), s)
	for _, name := range missing {
		slog.Warn("index_field_missing",
			slog.String("field", name),
			slog.String("path", path))
	}
	e.catalogue = cat

	slog.Info("index_opened",
		slog.String("path", path),
		slog.Bool("created", e.created),
		slog.Int("fields", cat.Len()))

	return e, nil
}

func (e *Engine) openDisk(m bleveMapping, create bool) error {
	dir := filepath.Dir(e.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.ErrCodeIndexOpen,
			fmt.Sprintf("failed to create directory %s", dir), err)
	}

	lock := flock.New(e.path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return errors.New(errors.ErrCodeIndexOpen, "failed to acquire index lock", err)
	}
	if !locked {
		return errors.Newf(errors.ErrCodeIndexLocked, "index %s is in use by another process", e.path).
			WithSuggestion("Stop the running rowsearch process or use its HTTP API")
	}
	e.lock = lock

	idx, created, err := openOrCreate(e.path, m, create)
	if err != nil {
		_ = lock.Unlock()
		return err
	}
	e.idx = idx
	e.created = created
	return nil
}

func openOrCreate(path string, m bleveMapping, create bool) (bleve.Index, bool, error) {
	if create {
		if err := os.RemoveAll(path); err != nil {
			return nil, false, errors.New(errors.ErrCodeIndexOpen,
				fmt.Sprintf("failed to remove index %s", path), err)
		}
		slog.Info("index_cleared", slog.String("path", path), slog.String("reason", "rebuild"))
	} else if err := checkIntegrity(path); err != nil {
		return nil, false, err
	}

	idx, err := bleve.Open(path)
	if err == nil {
		return idx, false, nil
	}
	switch {
	case stderrors.Is(err, bleve.ErrorIndexPathDoesNotExist):
	case stderrors.Is(err, bleve.ErrorIndexMetaMissing) && isEmptyDir(path):
		// An empty directory left behind by a failed first start is reused.
		if rerr := os.Remove(path); rerr != nil {
			return nil, false, errors.New(errors.ErrCodeIndexOpen, "failed to clear empty index directory", rerr)
		}
	default:
		return nil, false, errors.New(errors.ErrCodeIndexOpen,
			fmt.Sprintf("failed to open index %s", path), err).
			WithSuggestion("Run with --rebuild to recreate the index")
	}

	idx, err = bleve.New(path, m)
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeIndexOpen,
			fmt.Sprintf("failed to create index %s", path), err)
	}
	return idx, true, nil
}

func isEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) == 0
}

// checkIntegrity rejects a non-empty directory without index metadata.
func checkIntegrity(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(errors.ErrCodeIndexOpen, "cannot stat index path", err)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrCodeIndexOpen, "index path %s is not a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return errors.New(errors.ErrCodeIndexOpen, "cannot read index directory", err)
	}
	if len(entries) == 0 {
		return nil
	}

	meta, err := os.Stat(filepath.Join(path, indexMetaFile))
	if err != nil || meta.Size() == 0 {
		return errors.Newf(errors.ErrCodeCorruptIndex, "%s missing or empty in %s", indexMetaFile, path).
			WithSuggestion("Run with --rebuild to recreate the index")
	}
	return nil
}

// Created reports whether Open produced a fresh, empty index.
func (e *Engine) Created() bool { return e.created }

// Path returns the on-disk location, empty for in-memory indexes.
func (e *Engine) Path() string { return e.path }

// Catalogue returns the field table resolved at open.
func (e *Engine) Catalogue() Catalogue { return e.catalogue }

// DocCount returns the number of committed documents.
func (e *Engine) DocCount() (uint64, error) {
	return Read(e, func(r *Reader) (uint64, error) {
		return r.DocCount()
	})
}

// Close releases the index and its lock file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	err := e.idx.Close()
	if e.lock != nil {
		if uerr := e.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	if err != nil {
		return errors.New(errors.ErrCodeIndexFailed, "failed to close index", err)
	}
	return nil
}

var errClosed = errors.Newf(errors.ErrCodeIndexFailed, "index is closed")

// Read runs fn against the latest committed state. Concurrent reads and
// writes are serialized.
func Read[T any](e *Engine, fn func(*Reader) (T, error)) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero T
	if e.closed {
		return zero, errClosed
	}

	r := &Reader{e: e}
	defer r.invalidate()
	return fn(r)
}

// Write runs fn against a fresh batch. If fn fails the batch is discarded
// and fn's result and error are returned unchanged. Otherwise the batch is
// committed; a commit failure is reported as ERR_207_INDEX_COMMIT.
func Write[T any](e *Engine, fn func(*Writer) (T, error)) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero T
	if e.closed {
		return zero, errClosed
	}

	w := &Writer{e: e, batch: e.idx.NewBatch()}
	defer w.invalidate()

	out, err := fn(w)
	if err != nil {
		w.batch.Reset()
		slog.Debug("index_batch_rolled_back",
			slog.Int("documents", w.added),
			slog.String("error", err.Error()))
		return out, err
	}

	if w.batch.Size() > 0 {
		if cerr := e.idx.Batch(w.batch); cerr != nil {
			w.batch.Reset()
			return zero, errors.New(errors.ErrCodeIndexCommit, "failed to commit index batch", cerr)
		}
	}
	slog.Debug("index_batch_committed", slog.Int("documents", w.added))

	return out, nil
}

// Search is a convenience for a single query under Read.
func (e *Engine) Search(ctx context.Context, q Query, limit int) ([]Hit, error) {
	return Read(e, func(r *Reader) ([]Hit, error) {
		return r.Search(ctx, q, limit)
	})
}
