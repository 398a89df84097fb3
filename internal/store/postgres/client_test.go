package postgres

import (
	"net/url"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
)

func TestDSN_ExplicitWins(t *testing.T) {
	got := DSN(ClientConfig{DSN: "  postgres://a@b/c  ", Host: "ignored"})
	assert.Equal(t, "postgres://a@b/c", got)
}

func TestDSN_EscapesCredentials(t *testing.T) {
	got := DSN(ClientConfig{
		Host: "db.example.com", Database: "vault",
		User: "neon", Password: "p@ss/w:rd", SSLMode: "require",
	})

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "db.example.com:5432", u.Host)
	assert.Equal(t, "/vault", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/w:rd", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestDSN_DefaultsSSLModeDisable(t *testing.T) {
	u, err := url.Parse(DSN(ClientConfig{Host: "localhost", Port: 6543, Database: "postgres", User: "postgres"}))
	require.NoError(t, err)
	assert.Equal(t, "localhost:6543", u.Host)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 1")},
		"migrations/002_second.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":      {Data: []byte("notes")},
		"migrations/001_init.sql":   {Data: []byte("SELECT 1")},
	}
	names, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_second.sql", "010_later.sql"}, names)
}

func TestMigrationFiles_Embedded(t *testing.T) {
	names, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	assert.Contains(t, names, "001_init.sql")
}

func TestAuditQuery(t *testing.T) {
	q, args := auditQuery(domain.ListOpts{Limit: 50})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1", q)
	assert.Equal(t, []any{50}, args)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	q, args = auditQuery(domain.ListOpts{Event: "stake", Since: &since, Until: &until, Limit: 10, Offset: 20})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log"+
		" WHERE event = $1 AND created_at >= $2 AND created_at < $3"+
		" ORDER BY created_at, id LIMIT $4 OFFSET $5", q)
	assert.Equal(t, []any{"stake", since, until, 10, 20}, args)
}
