package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirkwood-lang/mirkwood/internal/config"
	"github.com/mirkwood-lang/mirkwood/internal/gql"
	"github.com/mirkwood-lang/mirkwood/internal/web/session"
)

const notesYAML = `
note:
  name: Note
  datasource:
    table: notes
    timestamps: true
  fields:
    title: String!
    stars: Int
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.yml"), []byte(notesYAML), 0644))

	return &config.Config{
		Server: config.ServerConfig{Path: "/graphql"},
		Models: config.ModelsConfig{Path: dir},
		Database: config.DatabaseConfig{
			Default: "main",
			Connections: map[string]config.ConnectionConfig{
				"main": {Adapter: "sqlite", Database: filepath.Join(dir, "app.db")},
			},
		},
		Session: config.SessionConfig{Store: config.SessionStoreMemory, CookieName: "sid", TTL: time.Hour},
		Auth: config.AuthConfig{
			Secret: "secret",
			ACL:    map[string][]string{"anonymous": {"note.database.count"}},
		},
	}
}

func TestAppServesCompiledModels(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(cfg, nil, WithSessionStore(session.NewMemoryStore(time.Minute)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	results, err := a.Migrate(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "notes", results[0].Collection)
	assert.False(t, results[0].Skipped)

	input := gql.Encode(map[string]interface{}{"title": "hello", "stars": 2})
	_, err = a.Client.Mutation(ctx, `note { database { create(input: `+input+`) { _id } } }`, "note.database.create._id")
	require.NoError(t, err)

	count, err := a.Client.Query(ctx, `note { database { count } }`, "note.database.count")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ note { database { count } } }"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"note":{"database":{"count":1}}}}`, rec.Body.String())
}

func TestServedSchema(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Same(t, a.Internal, a.Served())
	cfg.Production = true
	assert.Same(t, a.Public, a.Served())
}

func TestNewReportsModelErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Models.Path = filepath.Join(t.TempDir(), "missing")

	_, err := New(cfg, nil)
	assert.Error(t, err)
}
