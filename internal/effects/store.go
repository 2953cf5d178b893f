// Package effects persists the input and result documents of every task
// dispatch at deterministic, EffectID-addressed locations. The store is the
// dispatcher's idempotency ledger: a result found here is returned without
// re-invoking the executor, which makes whole runs replayable and auditable.

package effects

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrResultNotFound is returned when no persisted result exists for an effect.
var ErrResultNotFound = errors.New("effects: result not found")

// Store manages effect documents rooted at a base directory. Effect IDs are
// namespaced by run ID so concurrent runs never collide.
type Store struct {
	root string
}

// NewStore builds a store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the base directory for effect documents.
func (s *Store) Root() string {
	return s.root
}

// InputPath returns the deterministic location of an effect's input document.
func (s *Store) InputPath(runID, effectID string) string {
	return filepath.Join(s.runDir(runID), sanitize(effectID)+".input.json")
}

// ResultPath returns the deterministic location of an effect's result document.
func (s *Store) ResultPath(runID, effectID string) string {
	return filepath.Join(s.runDir(runID), sanitize(effectID)+".result.json")
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.root, sanitize(runID))
}

// SaveInput persists the input document for an effect.
func (s *Store) SaveInput(runID, effectID string, doc any) error {
	return s.write(s.InputPath(runID, effectID), doc)
}

// SaveResult persists the result document for an effect.
func (s *Store) SaveResult(runID, effectID string, doc any) error {
	return s.write(s.ResultPath(runID, effectID), doc)
}

// LoadResult reads a persisted result into out. Returns ErrResultNotFound when
// the effect has no recorded result yet.
func (s *Store) LoadResult(runID, effectID string, out any) error {
	data, err := os.ReadFile(s.ResultPath(runID, effectID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrResultNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("effects: decode result %s/%s: %w", runID, effectID, err)
	}
	return nil
}

// HasResult reports whether a result document exists for the effect.
func (s *Store) HasResult(runID, effectID string) bool {
	_, err := os.Stat(s.ResultPath(runID, effectID))
	return err == nil
}

// EffectIDs lists the effect identifiers with persisted results for a run,
// sorted for deterministic audit output.
func (s *Store) EffectIDs(runID string) ([]string, error) {
	entries, err := os.ReadDir(s.runDir(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".result.json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".result.json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) write(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

// sanitize keeps effect and run identifiers filesystem-safe.
func sanitize(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "unnamed"
	}
	replacer := strings.NewReplacer("/", "-", string(filepath.Separator), "-", "..", "-", " ", "-")
	return replacer.Replace(trimmed)
}
