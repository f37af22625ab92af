package manifest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mitchellh/copystructure"
)

var ErrUnknownKind = errors.New("unknown namespace kind")

// Kind names one of the five disjoint identifier namespaces of a compose manifest.
type Kind string

const (
	KindService Kind = "service"
	KindVolume  Kind = "volume"
	KindNetwork Kind = "network"
	KindConfig  Kind = "config"
	KindSecret  Kind = "secret"
)

// Kinds lists every namespace in a stable order.
var Kinds = []Kind{KindService, KindVolume, KindNetwork, KindConfig, KindSecret}

// Key returns the top-level manifest key holding the registry for k.
func (k Kind) Key() string { return string(k) + "s" }

func (k Kind) String() string { return string(k) }

// ParseKind accepts either the singular or the plural (top-level key) spelling.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		if s == string(k) || s == k.Key() {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Manifest is a decoded compose document. Only the registries and the
// reference sites inside services are ever interpreted; everything else is
// carried as-is.
type Manifest map[string]any

// Registry returns the top-level name->definition map for k.
// A missing, null or non-map value reports false.
func (m Manifest) Registry(k Kind) (map[string]any, bool) {
	reg, ok := m[k.Key()].(map[string]any)
	return reg, ok
}

func (m Manifest) Services() (map[string]any, bool) {
	return m.Registry(KindService)
}

// Names returns the sorted registry keys for k.
func (m Manifest) Names(k Kind) []string {
	reg, ok := m.Registry(k)
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(reg))
}

// Service returns the definition of a single service, if it is a map.
func (m Manifest) Service(name string) (map[string]any, bool) {
	svcs, ok := m.Services()
	if !ok {
		return nil, false
	}
	svc, ok := svcs[name].(map[string]any)
	return svc, ok
}

// Clone returns a deep copy of m sharing no maps or slices with it.
func Clone(m Manifest) (Manifest, error) {
	if m == nil {
		return nil, nil
	}
	cp, err := copystructure.Copy(m)
	if err != nil {
		return nil, fmt.Errorf("clone manifest: %w", err)
	}
	switch v := cp.(type) {
	case Manifest:
		return v, nil
	case map[string]any:
		return Manifest(v), nil
	default:
		return nil, fmt.Errorf("clone manifest: unexpected %T", cp)
	}
}

// CloneValue deep copies a single manifest subtree.
func CloneValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return copystructure.Copy(v)
}
