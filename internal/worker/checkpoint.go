package worker

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/rowsearch/internal/errors"
)

// NoCheckpoint is the key before any row has been committed.
const NoCheckpoint int64 = math.MinInt64

// Checkpoint is the durable sync position.
type Checkpoint struct {
	LastKey int64 `yaml:"last_key"`
}

// CheckpointStore persists the checkpoint as a small YAML document.
type CheckpointStore struct {
	path string
}

// NewCheckpointStore returns a store backed by path.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the state file location.
func (s *CheckpointStore) Path() string { return s.path }

// Load returns the stored checkpoint, or NoCheckpoint if the file does not
// exist.
func (s *CheckpointStore) Load() (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Checkpoint{LastKey: NoCheckpoint}, nil
	}
	if err != nil {
		return Checkpoint{}, errors.New(errors.ErrCodeCheckpoint, "failed to read checkpoint", err).
			WithDetail("path", s.path)
	}

	cp := Checkpoint{LastKey: NoCheckpoint}
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, errors.New(errors.ErrCodeCheckpoint, "failed to parse checkpoint", err).
			WithDetail("path", s.path).
			WithSuggestion("Run with --rebuild to start over")
	}
	return cp, nil
}

// Save writes cp atomically: a temp file in the same directory is renamed
// over the old state.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	data, err := yaml.Marshal(cp)
	if err != nil {
		return errors.New(errors.ErrCodeCheckpoint, "failed to encode checkpoint", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.ErrCodeCheckpoint, fmt.Sprintf("failed to create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.New(errors.ErrCodeCheckpoint, "failed to create checkpoint temp file", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return errors.New(errors.ErrCodeCheckpoint, "failed to write checkpoint", werr)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(errors.ErrCodeCheckpoint, "failed to replace checkpoint", err)
	}
	return nil
}

// Reset removes the state file so the next cycle starts from the beginning.
func (s *CheckpointStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.New(errors.ErrCodeCheckpoint, "failed to remove checkpoint", err)
	}
	return nil
}
