package migration

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/covidash/pkg/adapter/database/gorm"
	"github.com/tigerroll/covidash/pkg/adapter/database/gorm/sqlite"
	"github.com/tigerroll/covidash/pkg/config"
)

func TestMigrator_UpDownSQLite(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Database = map[string]interface{}{
		"appdb": map[string]interface{}{
			"type":     "sqlite",
			"database": ":memory:",
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
	}
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	defer resolver.CloseAll()
	conn, err := resolver.Resolve("appdb")
	require.NoError(t, err)

	fsys := fstest.MapFS{
		"migrations/sqlite/000001_create_covid_daily.up.sql":   {Data: []byte("CREATE TABLE covid_daily (country TEXT NOT NULL, date DATE NOT NULL, PRIMARY KEY (country, date));")},
		"migrations/sqlite/000001_create_covid_daily.down.sql": {Data: []byte("DROP TABLE covid_daily;")},
	}
	m := NewMigrator(conn, fsys, "migrations")

	v, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "an up-to-date schema is not an error")

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	sqlDB, err := conn.GetSQLDB()
	require.NoError(t, err)
	_, err = sqlDB.Exec(`INSERT INTO covid_daily (country, date) VALUES ('X', '2020-01-22')`)
	require.NoError(t, err)

	require.NoError(t, m.Down())
	_, err = sqlDB.Exec(`SELECT 1 FROM covid_daily`)
	assert.Error(t, err)
}

func TestMigrator_MissingDialectDirectory(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Database = map[string]interface{}{
		"appdb": map[string]interface{}{"type": "sqlite", "database": ":memory:"},
	}
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	defer resolver.CloseAll()
	conn, err := resolver.Resolve("appdb")
	require.NoError(t, err)

	err = NewMigrator(conn, fstest.MapFS{}, "migrations").Up()
	assert.Error(t, err)
}
