// Package state persists the priority level chosen for the next task.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gitclauder/internal/atomicfile"
	"gitclauder/pkg/protocol"

	"go.uber.org/zap"
)

// ErrInvalidLevel is returned by Save for levels outside 1..3.
var ErrInvalidLevel = protocol.ErrInvalidLevel

// State is the persisted cross-task memory state.
type State struct {
	NextPriorityLevel protocol.Level `json:"nextPriorityLevel"`
}

// Default is the state used when nothing valid is on disk.
func Default() State {
	return State{NextPriorityLevel: protocol.DefaultLevel}
}

// Store reads and writes State as a small JSON file.
type Store struct {
	path string
	log  *zap.Logger
}

// NewStore returns a Store backed by path. A nil logger disables warnings.
func NewStore(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state. A missing file yields the default
// silently; an unreadable, corrupt or out-of-range file yields the default
// with a warning. Load never fails.
func (s *Store) Load(ctx context.Context) State {
	if ctx.Err() != nil {
		return Default()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("memory state unreadable, using default level",
				zap.String("path", s.path), zap.Error(err))
		}
		return Default()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("memory state corrupt, using default level",
			zap.String("path", s.path), zap.Error(err))
		return Default()
	}
	if !st.NextPriorityLevel.Valid() {
		s.log.Warn("memory state holds invalid level, using default level",
			zap.String("path", s.path), zap.Int("level", int(st.NextPriorityLevel)))
		return Default()
	}
	return st
}

// Save persists st, replacing the previous file atomically.
func (s *Store) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !st.NextPriorityLevel.Valid() {
		return &protocol.InvalidLevelError{Level: st.NextPriorityLevel}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	data = append(data, '\n')
	if err := atomicfile.Write(s.path, data, 0o600); err != nil {
		return fmt.Errorf("state: write %s: %w", s.path, err)
	}
	return nil
}
