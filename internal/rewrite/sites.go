package rewrite

import (
	"fmt"
	"maps"
	"strings"

	"github.com/samber/lo"

	"github.com/cmmoran/composeiso/internal/manifest"
)

// A site is one service field that can reference names of a namespace.
// Adding a reference form is a single entry in sites.
type site struct {
	kind  manifest.Kind
	field string
	apply shapeFunc
}

// shapeFunc returns the rewritten value of a service field. It must not
// modify v; values it does not recognise are returned unchanged.
type shapeFunc func(v any, rn renamer) (any, error)

type renamer struct {
	kind  manifest.Kind
	table RenameTable
	token string
}

func (rn renamer) rename(name string) string { return rn.table.Rename(name) }

var sites = []site{
	{manifest.KindService, "depends_on", namesOrKeys},
	{manifest.KindService, "links", eachString(renameHead)},
	{manifest.KindService, "volumes_from", eachString(volumesFrom)},
	{manifest.KindService, "extends", nameOrField("service")},
	{manifest.KindService, "network_mode", prefixed("service:")},
	{manifest.KindService, "ipc", prefixed("service:")},
	{manifest.KindService, "pid", prefixed("service:")},
	{manifest.KindService, "container_name", mangled},

	{manifest.KindVolume, "volumes", eachEntry(volumeMount)},

	{manifest.KindNetwork, "networks", namesOrKeys},

	{manifest.KindConfig, "configs", eachEntry(nameOrField("source"))},

	{manifest.KindSecret, "secrets", eachEntry(nameOrField("source"))},
}

func sitesFor(kind manifest.Kind) []site {
	return lo.Filter(sites, func(s site, _ int) bool { return s.kind == kind })
}

// namesOrKeys handles `[a, b]` and `{a: ..., b: ...}`.
func namesOrKeys(v any, rn renamer) (any, error) {
	switch x := v.(type) {
	case []any:
		return lo.Map(x, func(e any, _ int) any {
			if s, ok := e.(string); ok {
				return rn.rename(s)
			}
			return e
		}), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			to := rn.rename(k)
			if _, dup := out[to]; dup {
				return nil, fmt.Errorf("%w: %s reference %q appears twice after rename", ErrNameCollision, rn.kind, to)
			}
			out[to] = val
		}
		return out, nil
	}
	return v, nil
}

// eachString rewrites the string elements of a list with f.
func eachString(f func(string, renamer) string) shapeFunc {
	return func(v any, rn renamer) (any, error) {
		list, ok := v.([]any)
		if !ok {
			return v, nil
		}
		return lo.Map(list, func(e any, _ int) any {
			if s, ok := e.(string); ok {
				return f(s, rn)
			}
			return e
		}), nil
	}
}

// eachEntry rewrites every element of a list with f.
func eachEntry(f shapeFunc) shapeFunc {
	return func(v any, rn renamer) (any, error) {
		list, ok := v.([]any)
		if !ok {
			return v, nil
		}
		out := make([]any, len(list))
		for i, e := range list {
			ne, err := f(e, rn)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	}
}

// renameHead handles "name" and "name:suffix", touching only the name.
func renameHead(s string, rn renamer) string {
	name, rest, found := strings.Cut(s, ":")
	to, ok := rn.table.Lookup(name)
	if !ok {
		return s
	}
	if !found {
		return to
	}
	return to + ":" + rest
}

// volumesFrom entries prefixed with "container:" name a container, not a service.
func volumesFrom(s string, rn renamer) string {
	if strings.HasPrefix(s, "container:") {
		return s
	}
	return renameHead(s, rn)
}

// nameOrField handles a bare name or an object whose field names the target.
func nameOrField(field string) shapeFunc {
	return func(v any, rn renamer) (any, error) {
		switch x := v.(type) {
		case string:
			return rn.rename(x), nil
		case map[string]any:
			return renameField(x, field, rn), nil
		}
		return v, nil
	}
}

func renameField(m map[string]any, field string, rn renamer) map[string]any {
	name, ok := m[field].(string)
	if !ok {
		return m
	}
	to, ok := rn.table.Lookup(name)
	if !ok {
		return m
	}
	out := maps.Clone(m)
	out[field] = to
	return out
}

// prefixed handles "<prefix>name" strings such as network_mode: "service:db".
func prefixed(prefix string) shapeFunc {
	return func(v any, rn renamer) (any, error) {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, prefix) {
			return v, nil
		}
		return prefix + rn.rename(strings.TrimPrefix(s, prefix)), nil
	}
}

// container_name has no registry; it is always suffixed with the run token.
func mangled(v any, rn renamer) (any, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return v, nil
	}
	return Mangle(s, rn.token), nil
}

// volumeMount handles the short "source:target[:mode]" form and the long
// {type, source, target} form. Host paths and non-volume mounts are never touched.
func volumeMount(v any, rn renamer) (any, error) {
	switch x := v.(type) {
	case string:
		src, _, found := strings.Cut(x, ":")
		if !found || isHostPath(src) {
			return v, nil
		}
		return renameHead(x, rn), nil
	case map[string]any:
		if typ, _ := x["type"].(string); typ != "" && typ != "volume" {
			return v, nil
		}
		if src, _ := x["source"].(string); isHostPath(src) {
			return v, nil
		}
		return renameField(x, "source", rn), nil
	}
	return v, nil
}

func isHostPath(src string) bool {
	return strings.Contains(src, "/") || strings.HasPrefix(src, ".") || strings.HasPrefix(src, "~")
}
