package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yoniassia/memclawz/internal/errors"
)

// State is the durable sync cursor. It survives restarts so the loop resumes
// from where it left off instead of re-reading the whole log.
type State struct {
	LastSyncID  int64     `json:"last_sync_id"`
	TotalSynced int64     `json:"total_synced"`
	LastSyncAt  time.Time `json:"last_sync_at,omitempty"`
}

// LoadState reads the state file. A missing file means a fresh start, not an
// error; a corrupt file is an error so we never silently re-index from zero.
func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, errors.New(errors.ErrCodeStateFile,
			fmt.Sprintf("cannot read sync state at %s", path), err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, errors.New(errors.ErrCodeStateFile,
			fmt.Sprintf("sync state at %s is corrupt", path), err)
	}
	if st.LastSyncID < 0 {
		return State{}, errors.New(errors.ErrCodeStateFile,
			fmt.Sprintf("sync state at %s has a negative cursor", path), nil)
	}
	return st, nil
}

// SaveState writes the state file atomically via temp file and rename, so a
// crash mid-write never leaves a torn cursor behind.
func SaveState(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.ErrCodeStateFile,
			fmt.Sprintf("cannot create state directory for %s", path), err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.New(errors.ErrCodeStateFile, "cannot encode sync state", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.New(errors.ErrCodeStateFile,
			fmt.Sprintf("cannot write sync state at %s", tmpPath), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.New(errors.ErrCodeStateFile,
			fmt.Sprintf("cannot commit sync state at %s", path), err)
	}
	return nil
}
