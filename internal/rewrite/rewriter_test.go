package rewrite

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmmoran/composeiso/internal/manifest"
	"github.com/cmmoran/composeiso/internal/token"
)

func mustParse(t *testing.T, src string) manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(src))
	require.NoError(t, err)
	return m
}

func TestMangle(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"web", "abc123", "web-abc123"},
		{"plausible_db", "testhash", "plausible_db-testhash"},
		{"db-data", "x1", "db-data-x1"},
		{"web-t1", "t2", "web-t1-t2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Mangle(tt.name, tt.token))
		})
	}
}

func TestRewrite_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		token string
		in    string
		want  string
	}{
		{
			name:  "extends string form",
			token: "abc123",
			in: `
services:
  web:
    image: nginx
    extends: base
  base:
    image: base
`,
			want: `
services:
  web-abc123:
    image: nginx
    extends: base-abc123
  base-abc123:
    image: base
`,
		},
		{
			name:  "shared secret",
			token: "x1",
			in: `
services:
  api:
    image: api
    secrets: [common]
  worker:
    image: worker
    secrets: [common]
secrets:
  common:
    file: ./f
`,
			want: `
services:
  api-x1:
    image: api
    secrets: [common-x1]
  worker-x1:
    image: worker
    secrets: [common-x1]
secrets:
  common-x1:
    file: ./f
`,
		},
		{
			name:  "link alias untouched",
			token: "t9",
			in: `
services:
  web:
    image: web
    links: ["api:backend"]
  api:
    image: api
`,
			want: `
services:
  web-t9:
    image: web
    links: ["api-t9:backend"]
  api-t9:
    image: api
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := Rewrite(mustParse(t, tt.in), tt.token)
			require.NoError(t, err)
			assert.Equal(t, mustParse(t, tt.want), got)
		})
	}
}

const fullCompose = `
version: "3.8"

services:
  web:
    image: nginx:latest
    container_name: web_container
    depends_on:
      - app
    networks:
      - frontend
    volumes_from:
      - data
    links:
      - db
    extends:
      service: base_service
    configs:
      - source: web_config

  app:
    image: node:14
    networks:
      - backend
      - frontend
    volumes:
      - web_data:/srv/data:ro
    secrets:
      - source: db_password
        target: /run/secrets/pw
        mode: 0400

  db:
    image: postgres:13
    networks:
      - backend

  data:
    image: busybox
    volumes:
      - /data

  base_service:
    image: base:latest

networks:
  frontend:
    driver: bridge
  backend:
    driver: bridge

volumes:
  web_data:
    driver: local

configs:
  web_config:
    file: ./web_config.yml

secrets:
  db_password:
    file: ./db_password.txt
`

const fullComposeRewritten = `
version: "3.8"

services:
  web-testhash:
    image: nginx:latest
    container_name: web_container-testhash
    depends_on:
      - app-testhash
    networks:
      - frontend-testhash
    volumes_from:
      - data-testhash
    links:
      - db-testhash
    extends:
      service: base_service-testhash
    configs:
      - source: web_config-testhash

  app-testhash:
    image: node:14
    networks:
      - backend-testhash
      - frontend-testhash
    volumes:
      - web_data-testhash:/srv/data:ro
    secrets:
      - source: db_password-testhash
        target: /run/secrets/pw
        mode: 0400

  db-testhash:
    image: postgres:13
    networks:
      - backend-testhash

  data-testhash:
    image: busybox
    volumes:
      - /data

  base_service-testhash:
    image: base:latest

networks:
  frontend-testhash:
    driver: bridge
  backend-testhash:
    driver: bridge

volumes:
  web_data-testhash:
    driver: local

configs:
  web_config-testhash:
    file: ./web_config.yml

secrets:
  db_password-testhash:
    file: ./db_password.txt
`

func TestRewrite_AllNamespaces(t *testing.T) {
	got, res, err := Rewrite(mustParse(t, fullCompose), "testhash")
	require.NoError(t, err)
	assert.Equal(t, mustParse(t, fullComposeRewritten), got)

	assert.Equal(t, "testhash", res.Token)
	to, ok := res.Renamed(manifest.KindNetwork, "frontend")
	require.True(t, ok)
	assert.Equal(t, "frontend-testhash", to)
	assert.Len(t, res.Tables[manifest.KindService], 5)
	assert.Empty(t, res.Preserved)
}

func TestRewrite_Plausible(t *testing.T) {
	in := mustParse(t, `
services:
  plausible_db:
    image: postgres:16-alpine
    volumes:
      - db-data:/var/lib/postgresql/data
  plausible_events_db:
    image: clickhouse/clickhouse-server:24.3.3.102-alpine
    volumes:
      - event-data:/var/lib/clickhouse
      - event-logs:/var/log/clickhouse-server
      - ./clickhouse/clickhouse-config.xml:/etc/clickhouse-server/config.d/logging.xml:ro
  plausible:
    image: ghcr.io/plausible/community-edition:v2.1.0
    depends_on:
      - plausible_db
      - plausible_events_db
    ports:
      - 127.0.0.1:8000:8000
    env_file:
      - plausible-conf.env
volumes:
  db-data:
    driver: local
  event-data:
    driver: local
  event-logs:
    driver: local
`)
	want := mustParse(t, `
services:
  plausible_db-testhash:
    image: postgres:16-alpine
    volumes:
      - db-data-testhash:/var/lib/postgresql/data
  plausible_events_db-testhash:
    image: clickhouse/clickhouse-server:24.3.3.102-alpine
    volumes:
      - event-data-testhash:/var/lib/clickhouse
      - event-logs-testhash:/var/log/clickhouse-server
      - ./clickhouse/clickhouse-config.xml:/etc/clickhouse-server/config.d/logging.xml:ro
  plausible-testhash:
    image: ghcr.io/plausible/community-edition:v2.1.0
    depends_on:
      - plausible_db-testhash
      - plausible_events_db-testhash
    ports:
      - 127.0.0.1:8000:8000
    env_file:
      - plausible-conf.env
volumes:
  db-data-testhash:
    driver: local
  event-data-testhash:
    driver: local
  event-logs-testhash:
    driver: local
`)
	got, _, err := Rewrite(in, "testhash")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRewrite_UnresolvedReferencesUntouched(t *testing.T) {
	in := mustParse(t, `
services:
  app:
    image: app
    depends_on: [ghost]
    links: ["elsewhere:alias"]
    extends:
      file: common.yml
      service: base-web
    networks: [default, traefik-public]
    volumes:
      - anon-only
      - shared-vol:/data
    configs: [outside]
    secrets:
      - source: vault_token
        target: token
`)
	got, res, err := Rewrite(in, "abc123")
	require.NoError(t, err)

	svc, ok := got.Service("app-abc123")
	require.True(t, ok)
	orig, _ := in.Service("app")
	for _, field := range []string{"depends_on", "links", "extends", "networks", "volumes", "configs", "secrets"} {
		assert.Equal(t, orig[field], svc[field], field)
	}
	for _, kind := range []manifest.Kind{manifest.KindVolume, manifest.KindNetwork, manifest.KindConfig, manifest.KindSecret} {
		assert.Empty(t, res.Tables[kind], kind)
	}
}

func TestRewrite_LongFormMountTypes(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{"", "cache-x1"},
		{"volume", "cache-x1"},
		{"bind", "cache"},
		{"npipe", "cache"},
		{"cluster", "cache"},
	}
	for _, tt := range tests {
		t.Run(lo.CoalesceOrEmpty(tt.typ, "untyped"), func(t *testing.T) {
			mount := map[string]any{"source": "cache", "target": "/c"}
			if tt.typ != "" {
				mount["type"] = tt.typ
			}
			in := manifest.Manifest{
				"services": map[string]any{"app": map[string]any{"volumes": []any{mount}}},
				"volumes":  map[string]any{"cache": nil},
			}
			got, _, err := Rewrite(in, "x1")
			require.NoError(t, err)
			app, ok := got.Service("app-x1")
			require.True(t, ok)
			vols := app["volumes"].([]any)
			assert.Equal(t, tt.want, vols[0].(map[string]any)["source"])
		})
	}
}

func TestRewrite_BindMountsNeverMangled(t *testing.T) {
	in := mustParse(t, `
services:
  backup:
    image: backrest
    volumes:
      - backrest/data:/data
      - ./backrest:/config
      - ~/backrest:/home
      - /:/userdata:ro
      - backrest:/cache
      - type: bind
        source: backrest
        target: /bind
      - type: volume
        source: backrest
        target: /long
      - source: ./backrest
        target: /rel
      - type: tmpfs
        target: /tmp
volumes:
  backrest:
`)
	got, _, err := Rewrite(in, "x1")
	require.NoError(t, err)

	want := mustParse(t, `
services:
  backup-x1:
    image: backrest
    volumes:
      - backrest/data:/data
      - ./backrest:/config
      - ~/backrest:/home
      - /:/userdata:ro
      - backrest-x1:/cache
      - type: bind
        source: backrest
        target: /bind
      - type: volume
        source: backrest-x1
        target: /long
      - source: ./backrest
        target: /rel
      - type: tmpfs
        target: /tmp
volumes:
  backrest-x1:
`)
	assert.Equal(t, want, got)
}

func TestRewrite_ReferenceShapes(t *testing.T) {
	in := mustParse(t, `
services:
  db:
    image: postgres
  cache:
    image: redis
  api:
    image: api
    depends_on:
      db:
        condition: service_healthy
      cache:
        condition: service_started
    networks:
      front:
        aliases: [api]
      back:
      external_net:
    volumes_from:
      - db:ro
      - container:legacy
    network_mode: "service:cache"
    ipc: "service:db"
    pid: host
    extends: cache
networks:
  front:
  back:
    internal: true
`)
	got, _, err := Rewrite(in, "p7")
	require.NoError(t, err)

	want := mustParse(t, `
services:
  db-p7:
    image: postgres
  cache-p7:
    image: redis
  api-p7:
    image: api
    depends_on:
      db-p7:
        condition: service_healthy
      cache-p7:
        condition: service_started
    networks:
      front-p7:
        aliases: [api]
      back-p7:
      external_net:
    volumes_from:
      - db-p7:ro
      - container:legacy
    network_mode: "service:cache-p7"
    ipc: "service:db-p7"
    pid: host
    extends: cache-p7
networks:
  front-p7:
  back-p7:
    internal: true
`)
	assert.Equal(t, want, got)
}

func TestRewrite_PreservedNames(t *testing.T) {
	in := mustParse(t, `
services:
  app:
    image: myapp:latest
    networks:
      frontend:
        aliases:
          - app
      backend:
      dokploy-network:
  worker:
    image: worker:latest
    networks:
      - backend
      - dokploy-network
networks:
  frontend:
    driver: bridge
  backend:
    driver: bridge
  dokploy-network:
    driver: bridge
`)
	want := mustParse(t, `
services:
  app-testhash:
    image: myapp:latest
    networks:
      frontend-testhash:
        aliases:
          - app
      backend-testhash:
      dokploy-network:
  worker-testhash:
    image: worker:latest
    networks:
      - backend-testhash
      - dokploy-network
networks:
  frontend-testhash:
    driver: bridge
  backend-testhash:
    driver: bridge
  dokploy-network:
    driver: bridge
`)
	rw := New(WithPreserved(manifest.KindNetwork, "dokploy-network"))
	got, res, err := rw.Rewrite(in, "testhash")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"dokploy-network"}, res.Preserved[manifest.KindNetwork])
	_, renamed := res.Renamed(manifest.KindNetwork, "dokploy-network")
	assert.False(t, renamed)
}

func TestRewrite_Collisions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		in   string
	}{
		{
			name: "preserved name equals a mangled name",
			opts: []Option{WithPreserved(manifest.KindNetwork, "a-x1")},
			in: `
networks:
  a:
  a-x1:
`,
		},
		{
			name: "reference map keys merge after rename",
			in: `
services:
  db:
    image: postgres
  app:
    image: app
    depends_on:
      db:
        condition: service_started
      db-x1:
        condition: service_started
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(tt.opts...).Rewrite(mustParse(t, tt.in), "x1")
			require.ErrorIs(t, err, ErrNameCollision)
		})
	}
}

func TestRewrite_InvalidToken(t *testing.T) {
	in := mustParse(t, "services:\n  web:\n    image: nginx\n")
	for _, tok := range []string{"", "ABC", "a b", "-x", "x-", "a--b", "x/y"} {
		_, _, err := Rewrite(in, tok)
		assert.ErrorIs(t, err, token.ErrInvalidToken, tok)
	}
}

func TestRewrite_AbsentRegistries(t *testing.T) {
	in := mustParse(t, `
version: "3.8"
x-common:
  restart: always
`)
	got, res, err := Rewrite(in, "abc")
	require.NoError(t, err)
	assert.Equal(t, in, got)
	for _, kind := range manifest.Kinds {
		assert.Empty(t, res.Tables[kind])
	}
}

func TestRewrite_DoesNotMutateInput(t *testing.T) {
	in := mustParse(t, fullCompose)
	snapshot, err := manifest.Clone(in)
	require.NoError(t, err)

	got, _, err := Rewrite(in, "abc")
	require.NoError(t, err)
	assert.Equal(t, snapshot, in)

	// the output owns its data
	svc, ok := got.Service("app-abc")
	require.True(t, ok)
	svc["networks"].([]any)[0] = "mutated"
	got["volumes"].(map[string]any)["web_data-abc"].(map[string]any)["driver"] = "mutated"
	assert.Equal(t, snapshot, in)
}

func TestRewriteNamespace_SinglePass(t *testing.T) {
	in := mustParse(t, fullCompose)
	got, table, err := New().RewriteNamespace(in, manifest.KindSecret, "s1")
	require.NoError(t, err)
	assert.Equal(t, RenameTable{"db_password": "db_password-s1"}, table)
	assert.Equal(t, []string{"db_password-s1"}, got.Names(manifest.KindSecret))
	// other namespaces untouched by a secret pass
	assert.Equal(t, in.Names(manifest.KindService), got.Names(manifest.KindService))
	assert.Equal(t, in.Names(manifest.KindNetwork), got.Names(manifest.KindNetwork))

	_, _, err = New().RewriteNamespace(in, manifest.KindSecret, "")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
