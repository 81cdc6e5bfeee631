// Package migration applies embedded SQL schema migrations with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/covidash/pkg/adapter/database"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// DefaultMigrationsTable is the bookkeeping table golang-migrate maintains.
const DefaultMigrationsTable = "covidash_schema_migrations"

// Migrator runs the migrations for one database connection.
// Migration files live in one directory per dialect: <root>/<type>/NNNNNN_name.{up,down}.sql.
type Migrator struct {
	conn      database.DBConnection
	fsys      fs.FS
	root      string
	tableName string
}

// NewMigrator creates a Migrator reading migrations from fsys under root.
func NewMigrator(conn database.DBConnection, fsys fs.FS, root string) *Migrator {
	return &Migrator{conn: conn, fsys: fsys, root: root, tableName: DefaultMigrationsTable}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.conn.Type() {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.tableName})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: m.tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	dir := path.Join(m.root, m.conn.Type())
	sourceDriver, err := iofs.New(m.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", dir, err)
	}

	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	inst, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return inst, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	return m.run("up", func(inst *migrate.Migrate) error { return inst.Up() })
}

// Down reverts all applied migrations.
func (m *Migrator) Down() error {
	return m.run("down", func(inst *migrate.Migrate) error { return inst.Down() })
}

// Version returns the current schema version and whether it is dirty.
func (m *Migrator) Version() (uint, bool, error) {
	inst, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// run executes fn on a fresh instance. The instance is not closed: closing it would
// close the shared *sql.DB owned by the connection.
func (m *Migrator) run(command string, fn func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' on '%s' (%s, table: %s)", command, m.conn.Name(), m.conn.Type(), m.tableName)

	inst, err := m.instance()
	if err != nil {
		return err
	}

	if err := fn(inst); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if v, dirty, verr := inst.Version(); verr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty: %t)", command, v, dirty)
		}
		return fmt.Errorf("migration '%s' failed for '%s' (%s): %w", command, m.conn.Name(), m.conn.Type(), err)
	}
	logger.Infof("Migration '%s' on '%s' completed.", command, m.conn.Name())
	return nil
}
