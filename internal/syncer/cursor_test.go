package syncer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoniassia/memclawz/internal/errors"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-state.json")

	st := State{
		LastSyncID:  42,
		TotalSynced: 120,
		LastSyncAt:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, SaveState(path, st))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, st, loaded)
}

func TestStateMissingFileIsFreshStart(t *testing.T) {
	st, err := LoadState(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, st.LastSyncID)
	assert.Zero(t, st.TotalSynced)
}

func TestStateCorruptFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadState(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStateFile, errors.GetCode(err))
}

func TestStateNegativeCursorRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_sync_id": -1}`), 0o644))

	_, err := LoadState(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStateFile, errors.GetCode(err))
}

func TestSaveStateCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "sync-state.json")
	require.NoError(t, SaveState(path, State{LastSyncID: 7}))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.LastSyncID)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
