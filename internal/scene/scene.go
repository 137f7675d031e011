// Package scene loads a list of envelopes from a file and replays them
// against a world model, typically to set up a known scene at startup.
package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agenthands/rsgwm/internal/core"
)

// Load reads a YAML or JSON document holding a list of envelopes.
func Load(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	envs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return envs, nil
}

// Parse decodes data, a YAML or JSON list of envelope objects, into JSON
// envelopes.
func Parse(data []byte) ([]json.RawMessage, error) {
	var docs []any
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}

	envs := make([]json.RawMessage, 0, len(docs))
	for i, doc := range docs {
		if _, ok := doc.(map[string]any); !ok {
			return nil, fmt.Errorf("scene entry %d is not an object", i)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("scene entry %d: %w", i, err)
		}
		envs = append(envs, raw)
	}
	return envs, nil
}

// Apply sends envs to wm in order and stops at the first envelope whose
// reply is unsuccessful.
func Apply(ctx context.Context, wm *core.WorldModel, envs []json.RawMessage, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for i, env := range envs {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := wm.Handle(ctx, env)
		if !result.Success() {
			logger.Error("scene setup failed", "index", i, "error", result.Failure())
			return fmt.Errorf("scene entry %d failed: %s", i, result.Failure())
		}
	}
	logger.Info("scene loaded", "envelopes", len(envs), "entities", wm.Store.Len())
	return nil
}
