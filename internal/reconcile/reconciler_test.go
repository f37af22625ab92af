package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/rewrite"
	"github.com/cmmoran/composeiso/internal/swarm"
)

type fakeClient struct {
	objects    map[manifest.Kind][]string
	containers []string
	err        error
	calls      int
}

func set(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func (f *fakeClient) Existing(_ context.Context, kind manifest.Kind) (map[string]struct{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return set(f.objects[kind]), nil
}

func (f *fakeClient) Containers(context.Context) (map[string]struct{}, error) {
	return set(f.containers), nil
}

func (f *fakeClient) Close() error { return nil }

// sequence hands out tokens in order.
type sequence struct {
	toks []string
	i    int
}

func (s *sequence) Generate() (string, error) {
	if s.i >= len(s.toks) {
		return "", errors.New("sequence exhausted")
	}
	tok := s.toks[s.i]
	s.i++
	return tok, nil
}

const compose = `
services:
  web:
    image: nginx
    container_name: web
    networks: [front]
networks:
  front:
volumes:
  data:
`

func parse(t *testing.T) manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(compose))
	require.NoError(t, err)
	return m
}

func quietLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name  string
		stack string
		cli   *fakeClient
		want  []Conflict
	}{
		{
			name: "clean target",
			cli:  &fakeClient{},
		},
		{
			name: "network and container taken",
			cli: &fakeClient{
				objects:    map[manifest.Kind][]string{manifest.KindNetwork: {"front-a1", "front"}},
				containers: []string{"web-a1"},
			},
			want: []Conflict{
				{Kind: manifest.KindNetwork, Name: "front-a1"},
				{Kind: KindContainer, Name: "web-a1"},
			},
		},
		{
			name:  "stack namespaced",
			stack: "shop",
			cli: &fakeClient{objects: map[manifest.Kind][]string{
				manifest.KindVolume:  {"shop_data-a1"},
				manifest.KindService: {"web-a1"},
			}},
			want: []Conflict{{Kind: manifest.KindVolume, Name: "shop_data-a1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, res, err := rewrite.Rewrite(parse(t), "a1")
			require.NoError(t, err)
			log, _ := quietLogger()
			got, err := New(tt.cli, nil, WithStack(tt.stack), WithLogger(log)).Preflight(context.Background(), out, res)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreflight_ClientError(t *testing.T) {
	boom := errors.New("daemon down")
	out, res, err := rewrite.Rewrite(parse(t), "a1")
	require.NoError(t, err)
	_, err = New(&fakeClient{err: boom}, nil).Preflight(context.Background(), out, res)
	assert.ErrorIs(t, err, boom)
}

func TestRewriteUnique(t *testing.T) {
	cli := &fakeClient{objects: map[manifest.Kind][]string{
		manifest.KindService: {"web-t1"},
		manifest.KindNetwork: {"front-t2"},
	}}
	log, hook := quietLogger()
	gen := &sequence{toks: []string{"t1", "t2", "t3"}}

	out, res, err := New(cli, nil, WithLogger(log)).RewriteUnique(context.Background(), parse(t), gen, 0)
	require.NoError(t, err)
	assert.Equal(t, "t3", res.Token)
	assert.Equal(t, []string{"web-t3"}, out.Names(manifest.KindService))
	// the target is listed once, not once per attempt
	assert.Equal(t, len(manifest.Kinds), cli.calls)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestRewriteUnique_Exhausted(t *testing.T) {
	cli := &fakeClient{containers: []string{"web-x1"}}
	log, _ := quietLogger()
	gen := &sequence{toks: []string{"x1", "x1", "x1"}}

	_, _, err := New(cli, nil, WithLogger(log)).RewriteUnique(context.Background(), parse(t), gen, 3)
	assert.ErrorIs(t, err, ErrTokenExhausted)
}

func TestRewriteUnique_InternalCollisionRetries(t *testing.T) {
	doc, err := manifest.Parse([]byte(`
networks:
  a:
  a-c1:
`))
	require.NoError(t, err)
	rw := rewrite.New(rewrite.WithPreserved(manifest.KindNetwork, "a-c1"))
	log, _ := quietLogger()
	gen := &sequence{toks: []string{"c1", "c2"}}

	out, res, err := New(swarm.NewNoopClient(), rw, WithLogger(log)).RewriteUnique(context.Background(), doc, gen, 2)
	require.NoError(t, err)
	assert.Equal(t, "c2", res.Token)
	assert.Equal(t, []string{"a-c1", "a-c2"}, out.Names(manifest.KindNetwork))
}

func TestRewriteUnique_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(swarm.NewNoopClient(), nil).RewriteUnique(ctx, parse(t), &sequence{toks: []string{"a"}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRewriteUnique_DeterministicCollision(t *testing.T) {
	doc, err := manifest.Parse([]byte(`
networks:
  a:
  a-x1:
`))
	require.NoError(t, err)
	rw := rewrite.New(rewrite.WithPreserved(manifest.KindNetwork, "a-x1"))
	log, _ := quietLogger()

	_, _, err = New(swarm.NewNoopClient(), rw, WithLogger(log)).RewriteUnique(context.Background(), doc, &sequence{toks: []string{"x1"}}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, rewrite.ErrNameCollision)
	assert.ErrorIs(t, err, ErrTokenExhausted)
	assert.ErrorContains(t, err, `"a-x1"`)
}

func TestRewriteUnique_ExhaustedReportsConflicts(t *testing.T) {
	cli := &fakeClient{objects: map[manifest.Kind][]string{manifest.KindVolume: {"data-y1"}}}
	log, _ := quietLogger()

	_, _, err := New(cli, nil, WithLogger(log)).RewriteUnique(context.Background(), parse(t), &sequence{toks: []string{"y1"}}, 1)
	assert.ErrorIs(t, err, ErrTokenExhausted)
	assert.NotErrorIs(t, err, rewrite.ErrNameCollision)
	assert.ErrorContains(t, err, "volume data-y1")
}
