// Package rewrite makes every identifier declared in a compose manifest unique
// by suffixing it with a token, and rewrites every reference to it.
//
// Each namespace (services, volumes, networks, configs, secrets) is handled by
// one pass: the top-level registry is renamed first, producing a RenameTable,
// then every reference site inside services is rewritten through that table.
// Passes only read and write their own registry and their own service fields,
// so they commute. References to names that are not declared in the manifest
// (external networks, host paths, anonymous volumes) are left as they are.
//
// Nothing here performs I/O or keeps state between calls; a Rewriter is safe
// for concurrent use.
package rewrite

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/token"
)

type Option func(*Rewriter)

// WithPreserved keeps names of kind exactly as declared. Their registry key
// and every reference to them survive the rewrite unchanged.
func WithPreserved(kind manifest.Kind, names ...string) Option {
	return func(r *Rewriter) {
		set, ok := r.preserved[kind]
		if !ok {
			set = map[string]struct{}{}
			r.preserved[kind] = set
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
}

// withOrder overrides the pass order.
func withOrder(kinds ...manifest.Kind) Option {
	return func(r *Rewriter) { r.order = kinds }
}

type Rewriter struct {
	preserved map[manifest.Kind]map[string]struct{}
	order     []manifest.Kind
}

func New(opts ...Option) *Rewriter {
	r := &Rewriter{
		preserved: map[manifest.Kind]map[string]struct{}{},
		order:     manifest.Kinds,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Result describes a completed rewrite run.
type Result struct {
	Token  string
	Tables map[manifest.Kind]RenameTable
	// Preserved lists, per kind, the declared names that kept their name.
	Preserved map[manifest.Kind][]string
}

// Renamed reports the new name of a declared identifier.
func (r *Result) Renamed(kind manifest.Kind, name string) (string, bool) {
	return r.Tables[kind].Lookup(name)
}

// Rewrite returns a copy of doc with every declared identifier suffixed with
// "-"+tok. doc itself is never modified and shares no maps or slices with the
// returned manifest.
func (r *Rewriter) Rewrite(doc manifest.Manifest, tok string) (manifest.Manifest, *Result, error) {
	if err := token.Validate(tok); err != nil {
		return nil, nil, err
	}
	out, err := manifest.Clone(doc)
	if err != nil {
		return nil, nil, err
	}
	if out == nil {
		out = manifest.Manifest{}
	}
	res := &Result{
		Token:     tok,
		Tables:    make(map[manifest.Kind]RenameTable, len(r.order)),
		Preserved: map[manifest.Kind][]string{},
	}
	for _, kind := range r.order {
		var table RenameTable
		out, table, err = r.rewriteNamespace(out, kind, tok)
		if err != nil {
			return nil, nil, err
		}
		res.Tables[kind] = table
		if kept := r.keptNames(out, kind); len(kept) > 0 {
			res.Preserved[kind] = kept
		}
	}
	return out, res, nil
}

// RewriteNamespace runs a single namespace pass: registry first, then every
// reference to it. doc is not modified, but the returned manifest shares
// unchanged subtrees with it.
func (r *Rewriter) RewriteNamespace(doc manifest.Manifest, kind manifest.Kind, tok string) (manifest.Manifest, RenameTable, error) {
	if err := token.Validate(tok); err != nil {
		return nil, nil, err
	}
	return r.rewriteNamespace(doc, kind, tok)
}

func (r *Rewriter) rewriteNamespace(doc manifest.Manifest, kind manifest.Kind, tok string) (manifest.Manifest, RenameTable, error) {
	next, table, err := rewriteRegistry(doc, kind, tok, r.preserved[kind])
	if err != nil {
		return nil, nil, err
	}
	next, err = rewriteReferences(next, kind, table, tok)
	if err != nil {
		return nil, nil, err
	}
	return next, table, nil
}

func (r *Rewriter) keptNames(doc manifest.Manifest, kind manifest.Kind) []string {
	var kept []string
	for _, name := range doc.Names(kind) {
		if _, ok := r.preserved[kind][name]; ok {
			kept = append(kept, name)
		}
	}
	return kept
}

// rewriteReferences rewrites the reference sites of kind in every service.
func rewriteReferences(doc manifest.Manifest, kind manifest.Kind, table RenameTable, tok string) (manifest.Manifest, error) {
	svcs, ok := doc.Services()
	if !ok {
		return doc, nil
	}
	rn := renamer{kind: kind, table: table, token: tok}
	fields := sitesFor(kind)

	out := make(map[string]any, len(svcs))
	for _, name := range slices.Sorted(maps.Keys(svcs)) {
		svc, ok := svcs[name].(map[string]any)
		if !ok {
			out[name] = svcs[name]
			continue
		}
		next := maps.Clone(svc)
		for _, s := range fields {
			v, present := svc[s.field]
			if !present {
				continue
			}
			nv, err := s.apply(v, rn)
			if err != nil {
				return nil, fmt.Errorf("service %q %s: %w", name, s.field, err)
			}
			next[s.field] = nv
		}
		out[name] = next
	}

	rewritten := maps.Clone(doc)
	rewritten[manifest.KindService.Key()] = out
	return rewritten, nil
}

// Rewrite runs a default Rewriter.
func Rewrite(doc manifest.Manifest, tok string) (manifest.Manifest, *Result, error) {
	return New().Rewrite(doc, tok)
}
