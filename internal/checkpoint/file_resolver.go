package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const decisionFileName = "DECISION"

// FileResolver resolves checkpoints through the filesystem, for headless
// runs. The prompt is written to <dir>/<checkpoint>/PROMPT.json and the
// resolver polls <dir>/<checkpoint>/DECISION for a line reading "proceed" or
// "reject".
type FileResolver struct {
	dir      string
	interval time.Duration
}

// FileOption customizes a FileResolver.
type FileOption func(*FileResolver)

// WithPollInterval overrides how often the decision file is checked.
func WithPollInterval(d time.Duration) FileOption {
	return func(r *FileResolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewFileResolver builds a resolver rooted at the run's checkpoint directory.
func NewFileResolver(dir string, opts ...FileOption) (*FileResolver, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("checkpoint: directory is required")
	}
	r := &FileResolver{dir: dir, interval: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// DecisionPath returns where a reviewer writes the decision for a prompt.
func (r *FileResolver) DecisionPath(prompt Prompt) string {
	return filepath.Join(r.promptDir(prompt), decisionFileName)
}

func (r *FileResolver) promptDir(prompt Prompt) string {
	return filepath.Join(r.dir, promptSlug(prompt))
}

// Await publishes the prompt and polls for a decision until the context ends.
func (r *FileResolver) Await(ctx context.Context, prompt Prompt) (Resolution, error) {
	dir := r.promptDir(prompt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: ensure prompt dir: %w", err)
	}
	encoded, err := json.MarshalIndent(prompt, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "PROMPT.json"), append(encoded, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("checkpoint: write prompt: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if resolution, ok, err := r.readDecision(prompt); err != nil {
			return "", err
		} else if ok {
			return resolution, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *FileResolver) readDecision(prompt Prompt) (Resolution, bool, error) {
	data, err := os.ReadFile(r.DecisionPath(prompt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "proceed", "approve", "yes":
		return Proceed, true, nil
	case "reject", "no":
		return Reject, true, nil
	case "":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("checkpoint: unrecognized decision %q", strings.TrimSpace(string(data)))
	}
}
