package diff

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/rewrite"
	"github.com/cmmoran/composeiso/internal/util"
)

type Item struct {
	Kind manifest.Kind `json:"kind"`
	From string        `json:"from"`
	To   string        `json:"to"`
}

// Plan is the rename report of one rewrite run.
type Plan struct {
	Token     string          `json:"token"`
	Renames   []Item          `json:"renames"`
	Preserved []Item          `json:"preserved,omitempty"`
	Before    string          `json:"before,omitempty"`
	After     string          `json:"after,omitempty"`
	Conflicts []Object        `json:"conflicts,omitempty"`
}

// Object is an orchestrator object that already carries a new name.
type Object struct {
	Kind manifest.Kind `json:"kind"`
	Name string        `json:"name"`
}

func New() *Plan { return &Plan{} }

// FromResult lists every rename of res, ordered by namespace then old name.
func FromResult(res *rewrite.Result) *Plan {
	pl := New()
	if res == nil {
		return pl
	}
	pl.Token = res.Token
	for _, kind := range manifest.Kinds {
		for from, to := range res.Tables[kind] {
			pl.Renames = append(pl.Renames, Item{Kind: kind, From: from, To: to})
		}
		pl.Preserved = append(pl.Preserved, lo.Map(res.Preserved[kind], func(n string, _ int) Item {
			return Item{Kind: kind, From: n, To: n}
		})...)
	}
	sortItems(pl.Renames)
	sortItems(pl.Preserved)
	return pl
}

// Fingerprints records canonical hashes of the input and output manifests.
func (p *Plan) Fingerprints(before, after manifest.Manifest) error {
	var err error
	if p.Before, err = util.FingerprintJSON(before); err != nil {
		return fmt.Errorf("fingerprint input: %w", err)
	}
	if p.After, err = util.FingerprintJSON(after); err != nil {
		return fmt.Errorf("fingerprint output: %w", err)
	}
	return nil
}

// AddConflict records an existing orchestrator object that a rename would reuse.
func (p *Plan) AddConflict(kind manifest.Kind, name string) {
	p.Conflicts = append(p.Conflicts, Object{Kind: kind, Name: name})
}

func (p *Plan) Count(kind manifest.Kind) int {
	return lo.CountBy(p.Renames, func(it Item) bool { return it.Kind == kind })
}

func (p *Plan) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func (p *Plan) WriteText(w io.Writer) error {
	var err error
	pf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	pf("token: %s\n", p.Token)
	for _, it := range p.Renames {
		pf("  %-8s %s -> %s\n", it.Kind, it.From, it.To)
	}
	for _, it := range p.Preserved {
		pf("  %-8s %s (preserved)\n", it.Kind, it.From)
	}
	for _, c := range p.Conflicts {
		pf("  %-8s %s already exists\n", c.Kind, c.Name)
	}
	if p.Before != "" {
		pf("before: %s\nafter:  %s\n", p.Before, p.After)
	}
	counts := lo.Map(manifest.Kinds, func(k manifest.Kind, _ int) string {
		return fmt.Sprintf("%s:%d", k.Key(), p.Count(k))
	})
	pf("%s\n", strings.Join(counts, " "))
	return err
}

func sortItems(items []Item) {
	rank := func(k manifest.Kind) int { return slices.Index(manifest.Kinds, k) }
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Or(cmp.Compare(rank(a.Kind), rank(b.Kind)), cmp.Compare(a.From, b.From))
	})
}
