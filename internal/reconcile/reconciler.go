package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/rewrite"
	"github.com/cmmoran/composeiso/internal/swarm"
	"github.com/cmmoran/composeiso/internal/token"
)

const DefaultAttempts = 5

var ErrTokenExhausted = errors.New("no conflict-free token found")

// KindContainer marks a container_name clash in a Conflict.
const KindContainer manifest.Kind = "container"

// Conflict is a renamed identifier that already exists on the target.
type Conflict struct {
	Kind manifest.Kind
	Name string
}

func (c Conflict) String() string { return string(c.Kind) + " " + c.Name }

type Option func(*Reconciler)

// WithStack sets the stack namespace objects are deployed under.
func WithStack(stack string) Option {
	return func(r *Reconciler) { r.stack = stack }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Reconciler) { r.log = log }
}

type Reconciler struct {
	cli   swarm.Client
	rw    *rewrite.Rewriter
	stack string
	log   logrus.FieldLogger
}

func New(cli swarm.Client, rw *rewrite.Rewriter, opts ...Option) *Reconciler {
	if rw == nil {
		rw = rewrite.New()
	}
	r := &Reconciler{cli: cli, rw: rw, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// existing is a snapshot of the names taken on the target.
type existing struct {
	objects    map[manifest.Kind]map[string]struct{}
	containers map[string]struct{}
}

func (r *Reconciler) snapshot(ctx context.Context) (*existing, error) {
	ex := &existing{objects: make(map[manifest.Kind]map[string]struct{}, len(manifest.Kinds))}
	for _, kind := range manifest.Kinds {
		names, err := r.cli.Existing(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("preflight %s: %w", kind.Key(), err)
		}
		ex.objects[kind] = names
	}
	var err error
	if ex.containers, err = r.cli.Containers(ctx); err != nil {
		return nil, fmt.Errorf("preflight containers: %w", err)
	}
	return ex, nil
}

// Preflight lists every renamed identifier of res, and every container_name
// of out, that is already taken on the target.
func (r *Reconciler) Preflight(ctx context.Context, out manifest.Manifest, res *rewrite.Result) ([]Conflict, error) {
	ex, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.conflicts(ex, out, res), nil
}

func (r *Reconciler) conflicts(ex *existing, out manifest.Manifest, res *rewrite.Result) []Conflict {
	var found []Conflict
	if res == nil {
		return nil
	}
	for _, kind := range manifest.Kinds {
		table := res.Tables[kind]
		for _, from := range slices.Sorted(maps.Keys(table)) {
			name := swarm.ObjectName(r.stack, table[from])
			if _, taken := ex.objects[kind][name]; taken {
				found = append(found, Conflict{Kind: kind, Name: name})
			}
		}
	}
	svcs, _ := out.Services()
	for _, svcName := range out.Names(manifest.KindService) {
		svc, ok := svcs[svcName].(map[string]any)
		if !ok {
			continue
		}
		if cn, _ := svc["container_name"].(string); cn != "" {
			if _, taken := ex.containers[cn]; taken {
				found = append(found, Conflict{Kind: KindContainer, Name: cn})
			}
		}
	}
	return found
}

// RewriteUnique draws tokens from gen until the rewritten manifest clashes
// with nothing on the target. attempts <= 0 means DefaultAttempts.
func (r *Reconciler) RewriteUnique(ctx context.Context, doc manifest.Manifest, gen token.Generator, attempts int) (manifest.Manifest, *rewrite.Result, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	ex, err := r.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		tok, err := gen.Generate()
		if err != nil {
			return nil, nil, err
		}
		out, res, err := r.rw.Rewrite(doc, tok)
		if errors.Is(err, rewrite.ErrNameCollision) {
			r.log.WithFields(logrus.Fields{"attempt": i, "token": tok}).WithError(err).Warn("token collides inside manifest")
			lastErr = err
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		last := r.conflicts(ex, out, res)
		if len(last) == 0 {
			r.log.WithFields(logrus.Fields{"attempt": i, "token": tok}).Debug("token accepted")
			return out, res, nil
		}
		r.log.WithFields(logrus.Fields{
			"attempt":   i,
			"token":     tok,
			"conflicts": len(last),
			"first":     last[0].String(),
		}).Warn("token clashes with existing objects")
		lastErr = fmt.Errorf("token %q: %d names already taken %v", tok, len(last), last)
	}
	return nil, nil, fmt.Errorf("%w after %d attempts: %w", ErrTokenExhausted, attempts, lastErr)
}
