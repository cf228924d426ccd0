package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowsearch/internal/errors"
)

func TestStatus_Starting(t *testing.T) {
	s := NewStatus()

	snap := s.Snapshot()
	assert.True(t, s.Healthy())
	assert.Equal(t, string(StateStarting), snap.State)
	assert.Nil(t, snap.LastKey)
	assert.Nil(t, snap.LastSuccessAt)
}

func TestStatus_TracksCycles(t *testing.T) {
	// Given: a source with two rows
	f := newFixture(t)
	f.insert(t, 1, "a", 1, nil)
	f.insert(t, 2, "b", 2, nil)

	// When: a cycle succeeds
	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	// Then: the snapshot shows the rows and key
	snap := f.worker.Status().Snapshot()
	assert.True(t, f.worker.Status().Healthy())
	assert.Equal(t, string(StateIdle), snap.State)
	assert.Equal(t, 1, snap.Cycles)
	assert.Equal(t, 2, snap.RowsIngested)
	require.NotNil(t, snap.LastKey)
	assert.Equal(t, int64(2), *snap.LastKey)
	assert.NotNil(t, snap.LastSuccessAt)

	// When: the next cycle fails
	f.worker.opts.Query = "SELECT * FROM missing_table WHERE id > ?"
	_, err = f.worker.RunOnce(context.Background())
	require.Error(t, err)

	// Then: the failure is reported and earlier progress kept
	snap = f.worker.Status().Snapshot()
	assert.False(t, f.worker.Status().Healthy())
	assert.Equal(t, string(StateError), snap.State)
	assert.Equal(t, 2, snap.Cycles)
	assert.Equal(t, 1, snap.Failures)
	assert.Equal(t, errors.ErrCodeSourceFetch, snap.LastErrorCode)
	assert.Equal(t, int64(2), *snap.LastKey)
}

func TestStatus_EmptySourceHasNoKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)

	snap := f.worker.Status().Snapshot()
	assert.Equal(t, string(StateIdle), snap.State)
	assert.Nil(t, snap.LastKey)
}
