package export_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/export"
	"github.com/tigerroll/covidash/internal/pipeline"
	"github.com/tigerroll/covidash/internal/snapshot"
	"github.com/tigerroll/covidash/pkg/adapter/database"
	gormadapter "github.com/tigerroll/covidash/pkg/adapter/database/gorm"
	"github.com/tigerroll/covidash/pkg/adapter/database/gorm/sqlite"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/adapter/storage/local"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/metrics"
	"github.com/tigerroll/covidash/pkg/support/exception"
)

func day(d int) time.Time {
	return time.Date(2020, time.January, d, 0, 0, 0, 0, time.UTC)
}

func sampleSnapshot(confirmedX int64) *snapshot.Snapshot {
	return snapshot.New([]model.MergedRecord{
		{Country: "X", Date: day(22), Confirmed: confirmedX, Recovered: 1, Death: 1, Active: confirmedX - 2, CaseFatalityRatio: 13, Complete: true},
		{Country: "Y", Date: day(22), Confirmed: 10, Recovered: 2, Death: 1, Active: 7, CaseFatalityRatio: 10, Complete: true},
		{Country: "X", Date: day(23), Confirmed: 10, Recovered: 3, Death: 2, Active: 5, CaseFatalityRatio: 20, Complete: true},
	}, pipeline.Report{Records: 3}, time.Date(2020, time.January, 24, 6, 0, 0, 0, time.UTC))
}

// memFile is a read-only in-memory source.ParquetFile.
type memFile struct {
	*bytes.Reader
	data []byte
}

func newMemFile(data []byte) *memFile {
	return &memFile{Reader: bytes.NewReader(data), data: data}
}

func (f *memFile) Open(string) (source.ParquetFile, error)   { return newMemFile(f.data), nil }
func (f *memFile) Create(string) (source.ParquetFile, error) { return nil, errors.New("read-only") }
func (f *memFile) Write([]byte) (int, error)                 { return 0, errors.New("read-only") }
func (f *memFile) Close() error                              { return nil }

func readParquet(t *testing.T, data []byte) []export.ParquetRow {
	t.Helper()
	pr, err := reader.NewParquetReader(newMemFile(data), new(export.ParquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]export.ParquetRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestNewParquetRow(t *testing.T) {
	builtAt := time.Date(2020, time.January, 24, 6, 0, 0, 0, time.UTC)
	row := export.NewParquetRow(model.MergedRecord{Country: "X", Date: day(22), Confirmed: 8, Active: 6}, "id-1", builtAt)
	assert.Equal(t, int32(18283), row.Date)
	assert.Equal(t, builtAt.UnixMilli(), row.BuiltAt)
	assert.Equal(t, "id-1", row.SnapshotID)
}

func TestParquetExporter_WritesOneFilePerDate(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Storage = map[string]interface{}{
		"lake": map[string]interface{}{"type": "local", "base_dir": t.TempDir(), "bucket_name": "exports"},
	}
	resolver := storage.NewResolver(cfg, local.NewProvider(cfg))

	for _, compression := range []string{"SNAPPY", "gzip", "NONE"} {
		pc := config.ParquetExportConfig{Enabled: true, StorageRef: "lake", BasePath: "covid_daily", Compression: compression}
		exporter, err := export.NewParquetExporter(resolver, pc)
		require.NoError(t, err)

		snap := sampleSnapshot(8)
		require.NoError(t, exporter.Export(ctx, snap), compression)

		conn, err := resolver.Resolve(ctx, "lake")
		require.NoError(t, err)

		objectName := exporter.ObjectName(day(22), snap.ID)
		assert.Equal(t, "covid_daily/dt=2020-01-22/covid_daily_"+snap.ID+".parquet", objectName)
		rc, err := conn.Download(ctx, "", objectName)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, "PAR1", string(data[:4]))
		assert.Equal(t, "PAR1", string(data[len(data)-4:]))

		rows := readParquet(t, data)
		require.Len(t, rows, 2)
		assert.Equal(t, "X", rows[0].Country)
		assert.Equal(t, int64(8), rows[0].Confirmed)
		assert.Equal(t, "Y", rows[1].Country)
		assert.Equal(t, snap.ID, rows[1].SnapshotID)

		var names []string
		require.NoError(t, conn.ListObjects(ctx, "", "covid_daily/dt=2020-01-23", func(name string) error {
			names = append(names, name)
			return nil
		}))
		assert.Contains(t, names, exporter.ObjectName(day(23), snap.ID))
	}
}

func TestParquetExporter_ReplacesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Storage = map[string]interface{}{
		"lake": map[string]interface{}{"type": "local", "base_dir": dir, "bucket_name": "exports"},
	}
	resolver := storage.NewResolver(cfg, local.NewProvider(cfg))
	exporter, err := export.NewParquetExporter(resolver, config.ParquetExportConfig{Enabled: true, StorageRef: "lake", BasePath: "covid_daily"})
	require.NoError(t, err)

	first, second := sampleSnapshot(8), sampleSnapshot(9)
	require.NotEqual(t, first.ID, second.ID)
	require.NoError(t, exporter.Export(ctx, first))
	require.NoError(t, exporter.Export(ctx, second))

	conn, err := resolver.Resolve(ctx, "lake")
	require.NoError(t, err)
	for _, date := range []time.Time{day(22), day(23)} {
		var names []string
		require.NoError(t, conn.ListObjects(ctx, "", "covid_daily/dt="+date.Format("2006-01-02"), func(name string) error {
			names = append(names, name)
			return nil
		}))
		assert.Equal(t, []string{exporter.ObjectName(date, second.ID)}, names)
	}

	rc, err := conn.Download(ctx, "", exporter.ObjectName(day(22), second.ID))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	rows := readParquet(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(9), rows[0].Confirmed)
}

func TestParquetExporter_Errors(t *testing.T) {
	_, err := export.NewParquetExporter(nil, config.ParquetExportConfig{Compression: "LZMA"})
	assert.ErrorIs(t, err, exception.ErrConfig)

	cfg := config.NewConfig()
	exporter, err := export.NewParquetExporter(storage.NewResolver(cfg), config.ParquetExportConfig{StorageRef: "missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, exporter.Export(context.Background(), sampleSnapshot(8)), exception.ErrExport)
}

var sqliteMigrations = fstest.MapFS{
	"migrations/sqlite/000001_create_covid_daily.up.sql": {Data: []byte(`CREATE TABLE covid_daily (
  country TEXT NOT NULL,
  date DATE NOT NULL,
  confirmed INTEGER NOT NULL,
  recovered INTEGER NOT NULL,
  death INTEGER NOT NULL,
  active INTEGER NOT NULL,
  case_fatality_ratio INTEGER NOT NULL,
  complete BOOLEAN NOT NULL,
  snapshot_id TEXT NOT NULL,
  built_at DATETIME NOT NULL,
  PRIMARY KEY (country, date)
);`)},
	"migrations/sqlite/000001_create_covid_daily.down.sql": {Data: []byte(`DROP TABLE covid_daily;`)},
}

func TestDatabaseExporter_SQLiteUpsert(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Database = map[string]interface{}{
		"appdb": map[string]interface{}{
			"type":     "sqlite",
			"database": ":memory:",
			"pool":     map[string]interface{}{"max_open_conns": "1"},
		},
	}
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	defer resolver.CloseAll()

	exporter := export.NewDatabaseExporter(resolver, config.DatabaseExportConfig{
		Enabled:        true,
		DBRef:          "appdb",
		BatchSize:      2,
		Migrate:        true,
		MigrationsPath: "migrations",
	}, sqliteMigrations)

	require.NoError(t, exporter.Export(ctx, sampleSnapshot(8)))
	second := sampleSnapshot(9)
	require.NoError(t, exporter.Export(ctx, second))

	conn, err := resolver.Resolve("appdb")
	require.NoError(t, err)
	db, err := conn.GetSQLDB()
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM covid_daily").Scan(&count))
	assert.Equal(t, 3, count)

	var confirmed, active int64
	var snapshotID string
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT confirmed, active, snapshot_id FROM covid_daily WHERE country = 'X' ORDER BY date LIMIT 1").Scan(&confirmed, &active, &snapshotID))
	assert.Equal(t, int64(9), confirmed)
	assert.Equal(t, int64(7), active)
	assert.Equal(t, second.ID, snapshotID)
}

// stubProvider hands out one prebuilt connection.
type stubProvider struct {
	conn database.DBConnection
}

func (p *stubProvider) GetConnection(name string) (database.DBConnection, error) { return p.conn, nil }
func (p *stubProvider) CloseAll() error                                          { return nil }
func (p *stubProvider) Type() string                                             { return "postgres" }

func newMockResolver(t *testing.T) (*gormadapter.Resolver, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	dc := database.DatabaseConfig{Type: "postgres", Database: "warehouse"}
	conn, err := gormadapter.NewGormDBAdapter(gdb, dc, "warehouse")
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Database = map[string]interface{}{
		"warehouse": map[string]interface{}{"type": "postgres", "host": "localhost"},
	}
	return gormadapter.NewResolver(cfg, &stubProvider{conn: conn}), mock
}

func TestDatabaseExporter_PostgresUpsertStatement(t *testing.T) {
	resolver, mock := newMockResolver(t)
	exporter := export.NewDatabaseExporter(resolver, config.DatabaseExportConfig{Enabled: true, DBRef: "warehouse", BatchSize: 500}, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "covid_daily"`) + `.*ON CONFLICT.*"country".*"date".*DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, exporter.Export(context.Background(), sampleSnapshot(8)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseExporter_FailureRollsBack(t *testing.T) {
	resolver, mock := newMockResolver(t)
	exporter := export.NewDatabaseExporter(resolver, config.DatabaseExportConfig{Enabled: true, DBRef: "warehouse"}, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "covid_daily"`)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := exporter.Export(context.Background(), sampleSnapshot(8))
	assert.ErrorIs(t, err, exception.ErrExport)
	assert.True(t, exception.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseExporter_MigrateWithoutMigrations(t *testing.T) {
	resolver, _ := newMockResolver(t)
	exporter := export.NewDatabaseExporter(resolver, config.DatabaseExportConfig{DBRef: "warehouse", Migrate: true}, nil)
	assert.ErrorIs(t, exporter.Export(context.Background(), sampleSnapshot(8)), exception.ErrConfig)
}

type fakeExporter struct {
	name  string
	err   error
	calls int
}

func (f *fakeExporter) Name() string { return f.name }
func (f *fakeExporter) Export(ctx context.Context, snap *snapshot.Snapshot) error {
	f.calls++
	return f.err
}

type exportRecorder struct {
	metrics.NoOpRecorder
	statuses map[string]string
}

func (r *exportRecorder) RecordExport(ctx context.Context, exporter, status string, d time.Duration) {
	r.statuses[exporter] = status
}

func TestMulti_RunsEveryExporter(t *testing.T) {
	failing := &fakeExporter{name: "parquet", err: errors.New("bucket gone")}
	ok := &fakeExporter{name: "database"}
	recorder := &exportRecorder{statuses: map[string]string{}}

	err := export.NewMulti(recorder, failing, ok).Export(context.Background(), sampleSnapshot(8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, map[string]string{"parquet": metrics.StatusFailure, "database": metrics.StatusSuccess}, recorder.statuses)
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	m, err := export.FromConfig(cfg, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.NoError(t, m.Export(context.Background(), sampleSnapshot(8)))

	cfg.Covidash.Export.Parquet.Enabled = true
	cfg.Covidash.Export.Parquet.StorageRef = "lake"
	cfg.Covidash.Export.Database.Enabled = true
	cfg.Covidash.Export.Database.DBRef = "appdb"
	m, err = export.FromConfig(cfg, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}
