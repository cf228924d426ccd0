package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/worker"
)

// CheckIndex opens an existing index to report its size. A missing index
// or one held by a running server only warns.
func (c *Checker) CheckIndex(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "index",
		Required: true,
	}

	if _, err := os.Stat(cfg.IndexPath); os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s does not exist yet", cfg.IndexPath)
		result.Details = "It is created by the first 'rowsearch serve' or 'rowsearch sync'"
		return result
	}

	s, err := cfg.BuildSchema()
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	engine, err := index.Open(s, cfg.IndexPath, false)
	if errors.HasCode(err, errors.ErrCodeIndexLocked) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is in use by another process", cfg.IndexPath)
		return result
	}
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		if ce, ok := errors.As(err); ok {
			result.Details = ce.Suggestion
		}
		return result
	}
	defer func() { _ = engine.Close() }()

	count, err := engine.DocCount()
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d documents", count)
	if mapped, want := engine.Catalogue().Len(), len(cfg.Schema); mapped < want {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d documents, %d of %d fields mapped", count, mapped, want)
		result.Details = "Fields added after the index was created need 'rowsearch serve --rebuild'"
	}
	return result
}

// CheckCheckpoint reads the state file.
func (c *Checker) CheckCheckpoint(path string) CheckResult {
	result := CheckResult{
		Name:     "checkpoint",
		Required: true,
	}

	cp, err := worker.NewCheckpointStore(path).Load()
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "Delete the file to re-ingest every row"
		return result
	}

	result.Status = StatusPass
	if cp.LastKey == worker.NoCheckpoint {
		result.Message = "no rows ingested yet"
	} else {
		result.Message = fmt.Sprintf("last key %d", cp.LastKey)
	}
	return result
}

// CheckDatasource connects to the datasource and pings it once.
func (c *Checker) CheckDatasource(ctx context.Context, ds config.DatasourceConfig) CheckResult {
	result := CheckResult{
		Name:     "datasource",
		Required: true,
	}

	src, err := worker.NewSource(ds)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	db, err := src.Connect(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	_ = db.Close()

	result.Status = StatusPass
	result.Message = src.Name()
	return result
}
