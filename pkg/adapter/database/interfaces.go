// Package database defines the database connection abstractions used by the exporters and the migrator.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/configbinder"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`     // "postgres", "mysql" or "sqlite".
	Host     string     `yaml:"host"`     // Database host address.
	Port     int        `yaml:"port"`     // Database port number.
	Database string     `yaml:"database"` // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// DBExecutor writes rows.
type DBExecutor interface {
	// ExecuteUpsert inserts rows (a slice of models) into tableName, in batches of batchSize.
	// Rows conflicting on conflictColumns get updateColumns overwritten; with no
	// updateColumns the conflicting rows are left untouched. All batches commit together.
	ExecuteUpsert(ctx context.Context, rows interface{}, tableName string, conflictColumns []string, updateColumns []string, batchSize int) (rowsAffected int64, err error)
}

// DBConnection is a named, closable database handle.
type DBConnection interface {
	DBExecutor

	Close() error
	Type() string
	Name() string
	Config() DatabaseConfig
	// GetSQLDB returns the pooled *sql.DB, e.g. for schema migrations.
	GetSQLDB() (*sql.DB, error)
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
}

// LookupConfig decodes the database connection called name from cfg.
func LookupConfig(cfg *config.Config, name string) (DatabaseConfig, error) {
	var dc DatabaseConfig
	raw, ok := cfg.Covidash.Adapter.Database[name]
	if !ok {
		return dc, fmt.Errorf("database configuration '%s' not found under 'adapter.database' configs", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return dc, fmt.Errorf("invalid database configuration format for '%s': expected a mapping, got %T", name, raw)
	}
	if err := configbinder.BindProperties(props, &dc); err != nil {
		return dc, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	return dc, nil
}
