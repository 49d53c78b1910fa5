package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	config "example.com/socialfeed/internal/init"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// schema names one driver's migration set and the URL migrate uses to
// reach its database.
type schema struct {
	driver string
	source string
	dbURL  string
}

func cassandraSchema(cfg *config.Config) schema {
	return schema{
		driver: "cassandra",
		source: migrationSource(cfg.MigrationsDir, "cassandra"),
		dbURL: fmt.Sprintf(
			"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
			cfg.CassandraHost, cfg.CassandraKeyspace,
		),
	}
}

// postgresSchema rewrites the DSN for the pgx5 migrate driver, which only
// answers to the pgx5:// scheme.
func postgresSchema(cfg *config.Config) schema {
	dbURL := cfg.PostgresURL
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dbURL, prefix) {
			dbURL = "pgx5://" + strings.TrimPrefix(dbURL, prefix)
			break
		}
	}
	return schema{
		driver: "postgres",
		source: migrationSource(cfg.MigrationsDir, "postgres"),
		dbURL:  dbURL,
	}
}

func migrationSource(dir, driver string) string {
	return "file://" + filepath.Join(dir, driver)
}

// up applies every pending migration of the schema.
func (s schema) up() error {
	m, err := migrate.New(s.source, s.dbURL)
	if err != nil {
		return fmt.Errorf("%s: create migrate instance: %w", s.driver, err)
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logg.Info("store", "No new "+s.driver+" migrations to apply")
	case err != nil:
		return fmt.Errorf("%s: migration up failed: %w", s.driver, err)
	default:
		logg.Info("store", "Applied "+s.driver+" migrations")
	}
	return nil
}

// keyspaceDDL creates the keyspace migrate connects into. migrate cannot
// create it itself since its URL already names it.
func keyspaceDDL(keyspace string) string {
	return fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
		keyspace,
	)
}

func ensureKeyspace(cfg *config.Config) error {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = "system"
	cluster.Timeout = cfg.CassandraTimeout
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("connect to system keyspace: %w", err)
	}
	defer sess.Close()

	if err := sess.Query(keyspaceDDL(cfg.CassandraKeyspace)).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}
