package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/cli/cli/compose/loader"
	"github.com/docker/cli/cli/compose/schema"
	"go.yaml.in/yaml/v4"
)

// Parse decodes compose YAML into the generic tree the rewriter works on.
// Keys are always strings; nested mappings are map[string]any and sequences []any.
func Parse(b []byte) (Manifest, error) {
	dict, err := loader.ParseYAML(b)
	if err != nil {
		return nil, fmt.Errorf("parse compose: %w", err)
	}
	return Manifest(dict), nil
}

// Validate checks m against the compose schema for its declared version.
// The rewriter itself never calls this; it is an opt-in for callers that want
// to reject malformed input before rewriting it.
func Validate(m Manifest) error {
	if err := schema.Validate(m, schema.Version(m)); err != nil {
		return fmt.Errorf("validate compose: %w", err)
	}
	return nil
}

func Marshal(m Manifest) ([]byte, error) {
	b, err := yaml.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("encode compose: %w", err)
	}
	return b, nil
}

func Load(path string) (Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	return m, nil
}

func Write(path string, m Manifest) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
