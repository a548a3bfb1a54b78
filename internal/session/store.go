// Package session persists authenticated sessions to JSON files, one per
// actor, so restarts resume without a fresh login.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atkit/botfleet/internal/atproto"
)

// ErrNotFound indicates no saved session exists for the actor.
var ErrNotFound = errors.New("session not found")

// Store reads and writes session files under a root directory.
type Store struct {
	root string
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Load returns the saved session for the actor, or ErrNotFound.
func (s *Store) Load(actorID string) (atproto.Session, error) {
	data, err := os.ReadFile(s.path(actorID))
	if err != nil {
		if os.IsNotExist(err) {
			return atproto.Session{}, ErrNotFound
		}
		return atproto.Session{}, fmt.Errorf("read session for %s: %w", actorID, err)
	}
	var sess atproto.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return atproto.Session{}, fmt.Errorf("decode session for %s: %w", actorID, err)
	}
	return sess, nil
}

// Save overwrites the actor's session file.
func (s *Store) Save(actorID string, sess atproto.Session) error {
	payload, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session for %s: %w", actorID, err)
	}
	if err := os.WriteFile(s.path(actorID), payload, 0o600); err != nil {
		return fmt.Errorf("write session for %s: %w", actorID, err)
	}
	return nil
}

func (s *Store) path(actorID string) string {
	// Actor IDs may contain path-hostile characters (did:plc:..., handles
	// with dots are fine, but keep separators out).
	name := strings.ReplaceAll(actorID, string(os.PathSeparator), "_")
	return filepath.Join(s.root, name+".json")
}
