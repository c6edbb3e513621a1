// Package production provides production integrations: snapshot persistence,
// trace forwarding and visualization.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/comalice/activex/internal/core"
)

var (
	ErrNoRunID       = errors.New("snapshot has no run id")
	ErrUnknownFormat = errors.New("unknown snapshot format")
)

// Persister writes diagnostic snapshots for post-mortem inspection. A
// snapshot is never read back into a running framework.
type Persister interface {
	Save(ctx context.Context, snapshot core.Snapshot) error
	Load(ctx context.Context, runID string) (core.Snapshot, error)
}

// NewPersister returns a JSON or YAML persister rooted at dir.
func NewPersister(format, dir string) (Persister, error) {
	switch format {
	case "json":
		return NewJSONPersister(dir)
	case "yaml", "yml":
		return NewYAMLPersister(dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSONPersister is a file-based persister using JSON serialization.
type JSONPersister struct {
	dir string
}

// NewJSONPersister creates a JSONPersister, ensuring the directory exists.
func NewJSONPersister(dir string) (*JSONPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONPersister{dir: dir}, nil
}

func (p *JSONPersister) Save(ctx context.Context, snapshot core.Snapshot) error {
	if snapshot.RunID == "" {
		return ErrNoRunID
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return writeSnapshot(p.path(snapshot.RunID), data)
}

func (p *JSONPersister) Load(ctx context.Context, runID string) (core.Snapshot, error) {
	data, err := readSnapshot(p.path(runID), runID)
	if err != nil {
		return core.Snapshot{}, err
	}

	var snapshot core.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return core.Snapshot{}, fmt.Errorf("json unmarshal: %w", err)
	}
	snapshot.RunID = runID // Ensure ID
	return snapshot, nil
}

func (p *JSONPersister) path(runID string) string {
	return filepath.Join(p.dir, runID+".json")
}

// YAMLPersister is a file-based persister using YAML serialization.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snapshot core.Snapshot) error {
	if snapshot.RunID == "" {
		return ErrNoRunID
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return writeSnapshot(p.path(snapshot.RunID), data)
}

func (p *YAMLPersister) Load(ctx context.Context, runID string) (core.Snapshot, error) {
	data, err := readSnapshot(p.path(runID), runID)
	if err != nil {
		return core.Snapshot{}, err
	}

	var snapshot core.Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return core.Snapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	snapshot.RunID = runID // Ensure ID
	return snapshot, nil
}

func (p *YAMLPersister) path(runID string) string {
	return filepath.Join(p.dir, runID+".yaml")
}

func writeSnapshot(fn string, data []byte) error {
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func readSnapshot(fn, runID string) ([]byte, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("run %q: %w", runID, os.ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}
	return data, nil
}
