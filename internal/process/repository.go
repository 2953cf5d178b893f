package process

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrStateNotFound is returned when no persisted run state exists yet.
var ErrStateNotFound = errors.New("process: run state not found")

// StateStore persists run state snapshots.
type StateStore interface {
	Load(runID string) (State, error)
	Save(State) error
}

// Repository stores run state as JSON files under the runs directory.
type Repository struct {
	root string
}

// NewRepository creates a repository rooted at the runs directory.
func NewRepository(root string) *Repository {
	return &Repository{root: root}
}

func (r *Repository) path(runID string) string {
	safe := strings.ReplaceAll(strings.TrimSpace(runID), string(filepath.Separator), "-")
	return filepath.Join(r.root, safe, "state.json")
}

// Load reads the persisted state if present.
func (r *Repository) Load(runID string) (State, error) {
	data, err := os.ReadFile(r.path(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Save writes the run state to disk.
func (r *Repository) Save(state State) error {
	path := r.path(state.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

// discardStore satisfies StateStore for callers that do not persist state.
type discardStore struct{}

func (discardStore) Load(string) (State, error) { return State{}, ErrStateNotFound }
func (discardStore) Save(State) error           { return nil }
