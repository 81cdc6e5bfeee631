package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/covidash/pkg/adapter/database"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   database.DatabaseConfig
	name  string
}

var _ database.DBConnection = (*GormDBAdapter)(nil)

// NewGormDBAdapter wraps db as the connection called name.
func NewGormDBAdapter(db *gorm.DB, cfg database.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB for '%s': %w", name, err)
	}
	return &GormDBAdapter{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

func (a *GormDBAdapter) Close() error {
	logger.Infof("Closing database connection '%s'...", a.name)
	return a.sqlDB.Close()
}

func (a *GormDBAdapter) Type() string                    { return a.cfg.Type }
func (a *GormDBAdapter) Name() string                    { return a.name }
func (a *GormDBAdapter) Config() database.DatabaseConfig { return a.cfg }

func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

func (a *GormDBAdapter) Ping(ctx context.Context) error {
	return a.sqlDB.PingContext(ctx)
}

// ExecuteUpsert implements database.DBExecutor with INSERT ... ON CONFLICT inside one transaction.
func (a *GormDBAdapter) ExecuteUpsert(ctx context.Context, rows interface{}, tableName string, conflictColumns []string, updateColumns []string, batchSize int) (int64, error) {
	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	var affected int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Batches already share this transaction; no savepoint per batch.
		tx = tx.Session(&gorm.Session{SkipDefaultTransaction: true})
		if tableName != "" {
			tx = tx.Table(tableName)
		}
		result := tx.Clauses(onConflict).CreateInBatches(rows, batchSize)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert into '%s' failed: %w", tableName, err)
	}
	return affected, nil
}
