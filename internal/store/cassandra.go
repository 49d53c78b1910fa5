package store

import (
	"fmt"

	config "example.com/socialfeed/internal/init"
	"github.com/gocql/gocql"
)

// SessionInterface is the part of *gocql.Session the store needs.
type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// Store keeps users, posts and activity in Cassandra. Post documents are
// updated with lightweight transactions on their version column.
type Store struct {
	Session SessionInterface
}

// NewCassandra bootstraps the keyspace, migrates it and opens a session.
func NewCassandra(cfg *config.Config) (*Store, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("cassandra bootstrap: %w", err)
	}
	if err := cassandraSchema(cfg).up(); err != nil {
		return nil, err
	}

	sess, err := clusterConfig(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &Store{Session: sess}, nil
}

// clusterConfig reads at quorum. Version checks on posts and email claims
// are LWTs, so their serial phase stays in the local DC.
func clusterConfig(cfg *config.Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}
	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}
	return cluster
}

func (s *Store) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}
