// internal/state/archive.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/user/haven/internal/types"
)

// ArchiveStore is a JSON-file-backed session archive. Closed sessions are
// stored one file per session under archive/<userID>/<sessionID>.json.
type ArchiveStore struct {
	root string
	mu   sync.RWMutex
}

// NewArchiveStore creates a file-backed ArchiveStore rooted at the given
// directory.
func NewArchiveStore(root string) *ArchiveStore {
	return &ArchiveStore{root: root}
}

func (s *ArchiveStore) userDir(userID types.UserID) string {
	return filepath.Join(s.root, "archive", string(userID))
}

func (s *ArchiveStore) sessionPath(userID types.UserID, id types.SessionID) string {
	return filepath.Join(s.userDir(userID), string(id)+".json")
}

// SaveSession writes the session archive atomically (temp file + rename).
func (s *ArchiveStore) SaveSession(_ context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.userDir(session.UserID), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	path := s.sessionPath(session.UserID, session.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp archive: %w", err)
	}
	return nil
}

// ListByUser returns the user's archived sessions ordered by start time.
func (s *ArchiveStore) ListByUser(_ context.Context, userID types.UserID) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var sessions []*types.Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.userDir(userID), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		var session types.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, fmt.Errorf("unmarshal archive %s: %w", entry.Name(), err)
		}
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

// DeleteByUser removes all archived sessions for the user and returns the
// count removed.
func (s *ArchiveStore) DeleteByUser(_ context.Context, userID types.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.userDir(userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read archive dir: %w", err)
	}

	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			n++
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("remove archive dir: %w", err)
	}
	return n, nil
}
