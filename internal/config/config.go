package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v4"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/source"
	"github.com/cmmoran/composeiso/internal/token"
)

const (
	APIVersion = "composeiso/v1"
	EnvFile    = "COMPOSEISO_CONFIG"
)

var ErrNotConfig = errors.New("not a Config kind")

type Config struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
	Path       string   `yaml:"-"`
}

type Metadata struct {
	Name string `yaml:"name"`
}

type Spec struct {
	LogLevel string    `yaml:"logLevel"`
	Driver   string    `yaml:"driver"` // docker|noop
	Stack    string    `yaml:"stack"`
	Validate bool      `yaml:"validate"`
	Token    TokenSpec `yaml:"token"`
	// Preserve lists names, per namespace, that are never suffixed.
	Preserve map[string][]string `yaml:"preserve"`
	Git      GitSpec             `yaml:"git"`
	// Isolation switches rewrite and plan to a shared external network
	// named after the token instead of renaming every identifier.
	Isolation IsolationSpec `yaml:"isolation"`
}

type IsolationSpec struct {
	Enabled       bool `yaml:"enabled"`
	SuffixVolumes bool `yaml:"suffixVolumes"`
}

type TokenSpec struct {
	Value    string         `yaml:"value,omitempty"`
	Seed     string         `yaml:"seed,omitempty"`
	Template string         `yaml:"template,omitempty"`
	Vars     map[string]any `yaml:"vars,omitempty"`
	Length   int            `yaml:"length"`
	Attempts int            `yaml:"attempts"`
}

type GitSpec struct {
	URL   string         `yaml:"url"`
	Ref   string         `yaml:"ref"`
	Path  string         `yaml:"path"`
	Depth int            `yaml:"depth"`
	Auth  source.GitAuth `yaml:"auth"`
}

func Default() *Config {
	return &Config{
		APIVersion: APIVersion,
		Kind:       "Config",
		Spec: Spec{
			LogLevel: "info",
			Driver:   "noop",
			Token:    TokenSpec{Length: token.DefaultLength},
			Git:      GitSpec{Path: "docker-compose.yml"},
		},
	}
}

// Load reads path over Default. An empty path falls back to $COMPOSEISO_CONFIG;
// if that is empty too the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvFile)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	if !strings.EqualFold(cfg.Kind, "config") {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotConfig)
	}
	cfg.Path = abs
	return cfg, nil
}

// Preserved returns the preserved names keyed by namespace. Keys may use the
// singular or plural namespace spelling.
func (c *Config) Preserved() (map[manifest.Kind][]string, error) {
	out := map[manifest.Kind][]string{}
	for k, names := range c.Spec.Preserve {
		kind, err := manifest.ParseKind(k)
		if err != nil {
			return nil, fmt.Errorf("preserve: %w", err)
		}
		out[kind] = append(out[kind], names...)
	}
	return out, nil
}

// TokenGenerator picks the generator implied by the token spec: an explicit
// value, then a seed, then a template, and a random token otherwise.
func (t TokenSpec) TokenGenerator() token.Generator {
	switch {
	case t.Value != "":
		return token.Fixed(t.Value)
	case t.Seed != "":
		return token.Seeded{Seed: t.Seed, Length: t.Length}
	case t.Template != "":
		return token.Template{Text: t.Template, Data: t.Vars}
	}
	return token.Random{Length: t.Length}
}

// Deterministic reports whether every draw yields the same token.
func (t TokenSpec) Deterministic() bool {
	return t.Value != "" || t.Seed != "" || t.Template != ""
}
