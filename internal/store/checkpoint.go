// Package store persists the crawler's durable artifacts: the resumable
// checkpoint and the append-only profile output log.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint is the durable crawl position. It is written only after a
// page's results are in the output log, so a crash can re-fetch at most one
// page but never lose one.
type Checkpoint struct {
	Cursor         string `json:"cursor"`
	HostIndex      int    `json:"hostIndex"`
	TotalSeen      int64  `json:"totalSeen"`
	TotalSuspended int64  `json:"totalSuspended"`
	TotalErrors    int64  `json:"totalErrors"`
	TotalRequests  int64  `json:"totalRequests"`
}

// CheckpointStore overwrites a single JSON checkpoint file atomically.
type CheckpointStore struct {
	path string
}

// NewCheckpointStore returns a store writing to path.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Load reads the checkpoint; a missing file yields the zero checkpoint.
func (s *CheckpointStore) Load() (Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, nil
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	return cp, nil
}

// Save replaces the checkpoint file. The write goes to a temp file in the
// same directory followed by a rename, so readers never observe a torn
// checkpoint.
func (s *CheckpointStore) Save(cp Checkpoint) error {
	payload, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint %s: %w", s.path, err)
	}
	return nil
}
