package store

import (
	"strings"
	"testing"
	"time"

	config "example.com/socialfeed/internal/init"
	"github.com/gocql/gocql"
)

func TestPostgresSchemaRewritesScheme(t *testing.T) {
	cases := []struct{ in, want string }{
		{"postgres://u:p@db:5432/feed", "pgx5://u:p@db:5432/feed"},
		{"postgresql://u:p@db/feed?sslmode=disable", "pgx5://u:p@db/feed?sslmode=disable"},
		{"pgx5://db/feed", "pgx5://db/feed"},
	}
	for _, c := range cases {
		s := postgresSchema(&config.Config{PostgresURL: c.in, MigrationsDir: "migrations"})
		if s.dbURL != c.want {
			t.Errorf("postgresSchema(%q).dbURL = %q, want %q", c.in, s.dbURL, c.want)
		}
		if s.source != "file://migrations/postgres" {
			t.Errorf("unexpected source %q", s.source)
		}
	}
}

func TestCassandraSchema(t *testing.T) {
	s := cassandraSchema(&config.Config{
		CassandraHost:     "cass:9042",
		CassandraKeyspace: "feed",
		MigrationsDir:     "/srv/migrations",
	})
	if s.source != "file:///srv/migrations/cassandra" {
		t.Fatalf("unexpected source %q", s.source)
	}
	want := "cassandra://cass:9042/feed?x-migrations-table=schema_migrations&x-multi-statement=true"
	if s.dbURL != want {
		t.Fatalf("unexpected db url %q", s.dbURL)
	}
	if ddl := keyspaceDDL("feed"); !strings.Contains(ddl, "IF NOT EXISTS feed ") {
		t.Fatalf("unexpected keyspace ddl %q", ddl)
	}
}

func TestClusterConfig(t *testing.T) {
	cfg := &config.Config{
		CassandraHost:     "cass",
		CassandraKeyspace: "feed",
		CassandraTimeout:  3 * time.Second,
	}
	c := clusterConfig(cfg)
	if c.Keyspace != "feed" || c.Consistency != gocql.Quorum || c.SerialConsistency != gocql.LocalSerial {
		t.Fatalf("unexpected cluster config %+v", c)
	}
	if c.Timeout != 3*time.Second || c.ConnectTimeout != 3*time.Second {
		t.Fatalf("timeouts not applied: %v %v", c.Timeout, c.ConnectTimeout)
	}
	if c.Authenticator != nil || c.HostFilter != nil {
		t.Fatalf("no credentials or DC configured, got auth=%v filter=%v", c.Authenticator, c.HostFilter)
	}

	// Half-configured credentials are ignored.
	cfg.CassandraUsername = "feed"
	if clusterConfig(cfg).Authenticator != nil {
		t.Fatalf("username alone must not enable auth")
	}

	cfg.CassandraPassword = "pw"
	cfg.CassandraDC = "dc1"
	c = clusterConfig(cfg)
	if auth, ok := c.Authenticator.(gocql.PasswordAuthenticator); !ok || auth.Username != "feed" {
		t.Fatalf("unexpected authenticator %#v", c.Authenticator)
	}
	if c.HostFilter == nil {
		t.Fatalf("expected DC host filter")
	}
}
