package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/source"
	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/adapter/storage/local"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/exception"
)

const confirmedCSV = "Province/State,Country/Region,Lat,Long,1/22/20,1/23/20\n" +
	"A,X,1.0,2.0,3,4\n" +
	"B,X,1.0,2.0,5,6\n" +
	",\"Korea, South\",36.0,128.0,1,1\n"

func fastRetry(attempts int) config.RetryConfig {
	return config.RetryConfig{MaxAttempts: attempts, InitialInterval: 1, MaxInterval: 5, Factor: 2}
}

func httpConfig(base string) config.SourceConfig {
	sc := config.NewConfig().Covidash.Source
	sc.ConfirmedURL = base + "/confirmed.csv"
	sc.RecoveredURL = base + "/recovered.csv"
	sc.DeathsURL = base + "/deaths.csv"
	sc.Retry = fastRetry(3)
	return sc
}

func TestParseCSV(t *testing.T) {
	table, err := source.ParseCSV(model.Confirmed, strings.NewReader("\ufeff"+confirmedCSV))
	require.NoError(t, err)
	assert.Equal(t, model.Confirmed, table.Metric)
	assert.Equal(t, []string{"Province/State", "Country/Region", "Lat", "Long", "1/22/20", "1/23/20"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "Korea, South", table.Rows[2][1])
}

func TestParseCSV_Errors(t *testing.T) {
	_, err := source.ParseCSV(model.Death, strings.NewReader(""))
	assert.True(t, exception.IsSchemaError(err))

	_, err = source.ParseCSV(model.Death, strings.NewReader("a,b\n\"unterminated,1\n"))
	assert.True(t, exception.IsSchemaError(err))
}

func TestHTTPTableSource_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(confirmedCSV))
	}))
	defer srv.Close()

	src := source.NewHTTPTableSource(httpConfig(srv.URL), srv.Client())
	table, err := src.Fetch(context.Background(), model.Confirmed)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, srv.URL+"/confirmed.csv", src.Describe(model.Confirmed))
}

func TestHTTPTableSource_RejectsOversizedBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(confirmedCSV))
	}))
	defer srv.Close()

	src := source.NewHTTPTableSource(httpConfig(srv.URL), srv.Client())

	// Cut inside the last cell: a truncated body would parse as a wrong count.
	src.SetMaxBodyBytes(int64(len(confirmedCSV) - 2))
	_, err := src.Fetch(context.Background(), model.Confirmed)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrSource)
	assert.False(t, exception.IsRetryable(err))
	assert.Contains(t, err.Error(), "exceeds")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	src.SetMaxBodyBytes(int64(len(confirmedCSV)))
	table, err := src.Fetch(context.Background(), model.Confirmed)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "1", table.Rows[2][5])
}

func TestHTTPTableSource_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := source.NewHTTPTableSource(httpConfig(srv.URL), srv.Client()).Fetch(context.Background(), model.Recovered)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrSource)
	assert.True(t, exception.IsRetryable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPTableSource_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := source.NewHTTPTableSource(httpConfig(srv.URL), srv.Client()).Fetch(context.Background(), model.Death)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrSource)
	assert.False(t, exception.IsRetryable(err))
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/deaths.csv" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte(confirmedCSV))
	}))
	defer srv.Close()

	sc := httpConfig(srv.URL)
	_, err := source.FetchAll(context.Background(), source.NewHTTPTableSource(sc, srv.Client()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deaths.csv")

	sc.DeathsURL = sc.ConfirmedURL
	tables, err := source.FetchAll(context.Background(), source.NewHTTPTableSource(sc, srv.Client()))
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, model.Death, tables[model.Death].Metric)
}

func TestStorageTableSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "jhu"), 0755))
	for _, name := range []string{config.ConfirmedFileName, config.RecoveredFileName, config.DeathsFileName} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "jhu", name), []byte(confirmedCSV), 0644))
	}

	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Storage = map[string]interface{}{
		"upstream": map[string]interface{}{"type": "local", "base_dir": dir, "bucket_name": "jhu"},
	}
	cfg.Covidash.Source.Type = source.TypeStorage
	cfg.Covidash.Source.StorageRef = "upstream"

	resolver := storage.NewResolver(cfg, local.NewProvider(cfg))
	src, err := source.New(cfg, resolver)
	require.NoError(t, err)

	tables, err := source.FetchAll(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, tables[model.Recovered].Rows, 3)
	assert.Equal(t, "storage://upstream/"+config.DeathsFileName, src.Describe(model.Death))

	cfg.Covidash.Source.DeathsObject = "missing.csv"
	src, err = source.New(cfg, resolver)
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), model.Death)
	assert.ErrorIs(t, err, exception.ErrSource)
}

func TestNew_UnknownType(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Covidash.Source.Type = "ftp"
	_, err := source.New(cfg, nil)
	assert.ErrorIs(t, err, exception.ErrConfig)

	cfg.Covidash.Source.Type = source.TypeStorage
	_, err = source.New(cfg, nil)
	assert.ErrorIs(t, err, exception.ErrConfig)
}
