package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cmmoran/composeiso/internal/config"
	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/reconcile"
	"github.com/cmmoran/composeiso/internal/rewrite"
	"github.com/cmmoran/composeiso/internal/source"
	"github.com/cmmoran/composeiso/internal/swarm"
	"github.com/cmmoran/composeiso/internal/token"
)

type tokenFlags struct {
	value    string
	seed     string
	template string
	vars     map[string]string
	length   int
}

func (f *tokenFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.value, "token", "", "Use this token instead of generating one")
	fs.StringVar(&f.seed, "token-seed", "", "Derive the token from a seed, e.g. a branch name")
	fs.StringVar(&f.template, "token-template", "", "Render the token from a sprig template")
	fs.StringToStringVar(&f.vars, "token-var", nil, "Template data as key=value")
	fs.IntVar(&f.length, "token-length", 0, fmt.Sprintf("Token length %d..%d (default from config, else %d)", token.MinLength, token.MaxLength, token.DefaultLength))
}

// spec merges explicitly set flags over the config file's token spec.
// Setting any of --token, --token-seed or --token-template replaces the
// configured source as a whole.
func (f *tokenFlags) spec(fs *pflag.FlagSet, base config.TokenSpec) config.TokenSpec {
	ts := base
	if fs.Changed("token") || fs.Changed("token-seed") || fs.Changed("token-template") {
		ts.Value, ts.Seed, ts.Template = f.value, f.seed, f.template
	}
	if len(f.vars) > 0 {
		ts.Vars = lo.Assign(ts.Vars, lo.MapValues(f.vars, func(v string, _ string) any { return v }))
	}
	if fs.Changed("token-length") {
		ts.Length = f.length
	}
	return ts
}

type rewriteFlags struct {
	token    tokenFlags
	stack    string
	driver   string
	preserve []string
	validate bool
	attempts int
	isolated bool
	volumes  bool
}

func (f *rewriteFlags) register(fs *pflag.FlagSet) {
	f.token.register(fs)
	fs.StringVar(&f.stack, "stack", "", "Stack namespace objects are deployed under")
	fs.StringVar(&f.driver, "driver", "", "Preflight driver: docker|noop (default from config, else noop)")
	fs.StringArrayVar(&f.preserve, "preserve", nil, "Keep a name as is, as kind=name (repeatable)")
	fs.BoolVar(&f.validate, "validate", false, "Validate the input against the compose schema")
	fs.IntVar(&f.attempts, "attempts", 0, fmt.Sprintf("Tokens to try before giving up (default %d)", reconcile.DefaultAttempts))
	fs.BoolVar(&f.isolated, "isolated", false, "Attach every service to an external network named after the token instead of renaming")
	fs.BoolVar(&f.volumes, "isolate-volumes", false, "With --isolated, also suffix volumes with the token")
}

// pipeline is the shared load -> token -> rewrite path of rewrite and plan.
type pipeline struct {
	src      source.Source
	validate bool
	gen      token.Generator
	attempts int
	isolated bool
	volumes  bool
	rw       *rewrite.Rewriter
	cli      swarm.Client
	rec      *reconcile.Reconciler
	log      logrus.FieldLogger
}

func newPipeline(cmd *cobra.Command, f *rewriteFlags) (*pipeline, error) {
	fs := cmd.Flags()
	preserved, err := cfg.Preserved()
	if err != nil {
		return nil, err
	}
	for _, p := range f.preserve {
		kind, name, err := parsePreserve(p)
		if err != nil {
			return nil, err
		}
		preserved[kind] = append(preserved[kind], name)
	}
	opts := make([]rewrite.Option, 0, len(preserved))
	for kind, names := range preserved {
		opts = append(opts, rewrite.WithPreserved(kind, names...))
	}

	ts := f.token.spec(fs, cfg.Spec.Token)
	attempts := lo.Ternary(fs.Changed("attempts"), f.attempts, ts.Attempts)
	if ts.Deterministic() {
		attempts = 1
	}
	stack := lo.Ternary(fs.Changed("stack"), f.stack, cfg.Spec.Stack)
	driver := lo.Ternary(fs.Changed("driver"), f.driver, cfg.Spec.Driver)

	cli, err := swarm.NewClient(driver)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"driver": lo.CoalesceOrEmpty(driver, "noop"), "stack": stack})
	rw := rewrite.New(opts...)
	return &pipeline{
		src:      composeSource(),
		validate: f.validate || cfg.Spec.Validate,
		gen:      ts.TokenGenerator(),
		attempts: attempts,
		isolated: lo.Ternary(fs.Changed("isolated"), f.isolated, cfg.Spec.Isolation.Enabled),
		volumes:  lo.Ternary(fs.Changed("isolate-volumes"), f.volumes, cfg.Spec.Isolation.SuffixVolumes),
		rw:       rw,
		cli:      cli,
		rec:      reconcile.New(cli, rw, reconcile.WithStack(stack), reconcile.WithLogger(log)),
		log:      log,
	}, nil
}

func (p *pipeline) Close() error { return p.cli.Close() }

// isolate draws a single token and names the isolation network after it.
func (p *pipeline) isolate(in manifest.Manifest) (manifest.Manifest, *rewrite.Result, error) {
	tok, err := p.gen.Generate()
	if err != nil {
		return nil, nil, err
	}
	return p.rw.Isolate(in, rewrite.Isolation{Network: tok, SuffixVolumes: p.volumes})
}

func (p *pipeline) load(ctx context.Context) (manifest.Manifest, error) {
	return loadManifest(ctx, p.src, p.validate)
}

func loadManifest(ctx context.Context, src source.Source, validate bool) (manifest.Manifest, error) {
	b, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	if validate {
		if err = manifest.Validate(m); err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"source":   src.String(),
		"services": len(m.Names(manifest.KindService)),
	}).Debug("manifest loaded")
	return m, nil
}

// composeSource picks the git source when a repository is configured.
func composeSource() source.Source {
	g := cfg.Spec.Git
	url := lo.CoalesceOrEmpty(gitURL, g.URL)
	if url == "" {
		return source.File{Path: composeFile}
	}
	return &source.Git{
		URL:   url,
		Ref:   lo.CoalesceOrEmpty(gitRef, g.Ref),
		Path:  lo.CoalesceOrEmpty(gitPath, g.Path),
		Depth: g.Depth,
		Auth:  g.Auth,
		Log:   logrus.StandardLogger(),
	}
}

func parsePreserve(s string) (manifest.Kind, string, error) {
	k, name, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("--preserve %q: want kind=name", s)
	}
	kind, err := manifest.ParseKind(k)
	if err != nil {
		return "", "", fmt.Errorf("--preserve %q: %w", s, err)
	}
	return kind, name, nil
}
