package store

import (
	"encoding/json"
	"fmt"
	"os"
)

// ProfileRecord is the flattened output unit, one JSON line per resolved
// identity. Records are never rewritten once appended.
type ProfileRecord struct {
	SourceHost  string `json:"pds"`
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	IndexedAt   string `json:"indexedAt,omitempty"`
	Followers   int64  `json:"followers"`
	Following   int64  `json:"following"`
	Posts       int64  `json:"posts"`
}

// OutputLog appends newline-delimited JSON records to a single file.
type OutputLog struct {
	file *os.File
}

// OpenOutputLog opens (or creates) the log in append-only mode.
func OpenOutputLog(path string) (*OutputLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output log %s: %w", path, err)
	}
	return &OutputLog{file: f}, nil
}

// Append writes each record as one JSON line and syncs before returning, so
// a subsequent checkpoint write can rely on the records being durable.
func (l *OutputLog) Append(records []ProfileRecord) error {
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal profile record: %w", err)
		}
		if _, err := l.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append profile record: %w", err)
		}
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync output log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *OutputLog) Close() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close output log: %w", err)
	}
	return nil
}
