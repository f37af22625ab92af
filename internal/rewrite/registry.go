package rewrite

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/cmmoran/composeiso/internal/manifest"
)

var ErrNameCollision = errors.New("identifier collision")

// Mangle makes name unique for a rewrite run. It is injective for a fixed
// token and performs no escaping of name.
func Mangle(name, token string) string {
	return name + "-" + token
}

// RenameTable maps the declared names of one namespace to their new names.
type RenameTable map[string]string

// Rename returns the new name for name, or name itself when it was not
// declared in the registry the table was built from.
func (t RenameTable) Rename(name string) string {
	if to, ok := t[name]; ok {
		return to
	}
	return name
}

func (t RenameTable) Lookup(name string) (string, bool) {
	to, ok := t[name]
	return to, ok
}

// rewriteRegistry replaces the top-level map of kind with one whose keys are
// mangled. Definition bodies are deep copied and never edited. Names in
// preserved keep their key and stay out of the table.
func rewriteRegistry(doc manifest.Manifest, kind manifest.Kind, token string, preserved map[string]struct{}) (manifest.Manifest, RenameTable, error) {
	table := RenameTable{}
	reg, ok := doc.Registry(kind)
	if !ok {
		return doc, table, nil
	}

	out := make(map[string]any, len(reg))
	owner := make(map[string]string, len(reg))
	for _, name := range slices.Sorted(maps.Keys(reg)) {
		to := name
		if _, keep := preserved[name]; !keep {
			to = Mangle(name, token)
			table[name] = to
		}
		if prev, dup := owner[to]; dup {
			return nil, nil, fmt.Errorf("%w: %s %q and %q both become %q", ErrNameCollision, kind, prev, name, to)
		}
		body, err := manifest.CloneValue(reg[name])
		if err != nil {
			return nil, nil, fmt.Errorf("%s %q: %w", kind, name, err)
		}
		owner[to] = name
		out[to] = body
	}

	next := maps.Clone(doc)
	next[kind.Key()] = out
	return next, table, nil
}
