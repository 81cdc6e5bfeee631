package app_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/covidash/internal/app"
	"github.com/tigerroll/covidash/internal/server"
	"github.com/tigerroll/covidash/internal/snapshot"
	"github.com/tigerroll/covidash/pkg/config"
)

const wideCSV = "Province/State,Country/Region,Lat,Long,1/22/20,1/23/20\n" +
	"A,X,1.0,2.0,3,4\n" +
	"B,X,1.0,2.0,5,6\n" +
	",Y,36.0,128.0,2,2\n"

func writeUpstream(t *testing.T, dir string) {
	t.Helper()
	bucket := filepath.Join(dir, "jhu")
	require.NoError(t, os.MkdirAll(bucket, 0755))
	for _, name := range []string{config.ConfirmedFileName, config.RecoveredFileName, config.DeathsFileName} {
		require.NoError(t, os.WriteFile(filepath.Join(bucket, name), []byte(wideCSV), 0644))
	}
}

func testConfig(dir string, failOnStartup bool) config.EmbeddedConfig {
	return config.EmbeddedConfig(fmt.Sprintf(`
covidash:
  source:
    type: storage
    storage_ref: upstream
  refresh:
    fail_on_startup: %t
  server:
    address: "127.0.0.1:0"
  export:
    parquet:
      enabled: true
      storage_ref: lake
  metrics:
    enabled: true
  system:
    logging:
      level: WARN
  adapter:
    storage:
      upstream:
        type: local
        base_dir: %q
        bucket_name: jhu
      lake:
        type: local
        base_dir: %q
        bucket_name: exports
`, failOnStartup, dir, dir))
}

func TestOptions_Validate(t *testing.T) {
	migrations := fstest.MapFS{}
	err := fx.ValidateApp(
		app.Options("", testConfig(t.TempDir(), false), migrations, app.DBProviderOptions("sqlite", "postgres", "mysql")),
		app.Hooks(context.Background()),
	)
	assert.NoError(t, err)
}

func TestDBProviderOptions_SkipsUnknown(t *testing.T) {
	assert.Len(t, app.DBProviderOptions("sqlite", "oracle", "postgres"), 2)
}

func TestApplication_StartServeStop(t *testing.T) {
	dir := t.TempDir()
	writeUpstream(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store *snapshot.Store
		srv   *server.Server
	)
	fxApp := fx.New(
		app.Options("", testConfig(dir, true), nil, app.DBProviderOptions("sqlite")),
		app.Hooks(ctx),
		fx.Populate(&store, &srv),
	)
	require.NoError(t, fxApp.Err())
	require.NoError(t, fxApp.Start(context.Background()))

	snap := store.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.Len())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dates", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dates":["2020-01-22","2020-01-23"],"latest":"2020-01-23"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "covidash_")

	exported, err := filepath.Glob(filepath.Join(dir, "exports", "covid_daily", "dt=*", "*.parquet"))
	require.NoError(t, err)
	assert.Len(t, exported, 2)

	cancel()
	require.NoError(t, fxApp.Stop(context.Background()))
}

func TestApplication_FailOnStartup(t *testing.T) {
	dir := t.TempDir() // no upstream objects

	fxApp := fx.New(
		app.Options("", testConfig(dir, true), nil, app.DBProviderOptions("sqlite")),
		app.Hooks(context.Background()),
	)
	require.NoError(t, fxApp.Err())
	assert.Error(t, fxApp.Start(context.Background()))
}

func TestApplication_StartsWithoutData(t *testing.T) {
	dir := t.TempDir()

	var srv *server.Server
	fxApp := fx.New(
		app.Options("", testConfig(dir, false), nil, app.DBProviderOptions("sqlite")),
		app.Hooks(context.Background()),
		fx.Populate(&srv),
	)
	require.NoError(t, fxApp.Start(context.Background()))
	defer func() { assert.NoError(t, fxApp.Stop(context.Background())) }()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
