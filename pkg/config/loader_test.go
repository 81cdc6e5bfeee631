package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/covidash/pkg/support/exception"
)

const testYAML = `
covidash:
  source:
    type: storage
    storage_ref: fixtures
  pipeline:
    join_mode: outer
    rename_columns:
      Region: country
    country_aliases:
      "Korea, South": South Korea
  server:
    address: ":9999"
  adapter:
    database:
      appdb:
        type: sqlite
        database: ${COVIDASH_TEST_DB_FILE}
`

func TestLoadConfig_Layers(t *testing.T) {
	t.Setenv("COVIDASH_TEST_DB_FILE", "/tmp/covid.db")
	t.Setenv("COVIDASH_SERVER_ADDRESS", ":7000")
	t.Setenv("COVIDASH_PIPELINE_PARALLEL", "true")
	t.Setenv("COVIDASH_SERVER_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("COVIDASH_ADAPTER_DATABASE_APPDB_MAX_OPEN_CONNS", "4")

	cfg, err := LoadConfig("", EmbeddedConfig(testYAML))
	require.NoError(t, err)

	cc := cfg.Covidash
	// Defaults survive where YAML is silent.
	assert.Equal(t, "half_up", cc.Pipeline.Rounding)
	assert.Equal(t, []string{"Province/State", "Lat", "Long"}, cc.Pipeline.DropColumns)
	assert.Equal(t, ConfirmedFileName, cc.Source.ConfirmedObject)
	// YAML overrides defaults; the rename map is replaced, not merged.
	assert.Equal(t, "storage", cc.Source.Type)
	assert.Equal(t, "outer", cc.Pipeline.JoinMode)
	assert.Equal(t, map[string]string{"Region": "country"}, cc.Pipeline.RenameColumns)
	assert.Equal(t, "South Korea", cc.Pipeline.CountryAliases["Korea, South"])
	// Environment overrides YAML.
	assert.Equal(t, ":7000", cc.Server.Address)
	assert.True(t, cc.Pipeline.Parallel)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cc.Server.AllowedOrigins)

	appdb, ok := cc.Adapter.Database["appdb"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sqlite", appdb["type"])
	assert.Equal(t, "/tmp/covid.db", appdb["database"])
	assert.Equal(t, "4", appdb["max_open_conns"])

	assert.Equal(t, EmbeddedConfig(testYAML), cfg.EmbeddedConfig)
}

func TestLoadConfig_DefaultsRenameMapWhenAbsent(t *testing.T) {
	cfg, err := LoadConfig("", EmbeddedConfig("covidash:\n  server:\n    address: ':1'\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Country/Region": "country"}, cfg.Covidash.Pipeline.RenameColumns)
}

func TestLoadConfig_EnvStringMap(t *testing.T) {
	t.Setenv("COVIDASH_PIPELINE_COUNTRY_ALIASES", "Korea, South=South Korea;US=United States")
	cfg, err := LoadConfig("", EmbeddedConfig(""))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Korea, South": "South Korea", "US": "United States"}, cfg.Covidash.Pipeline.CountryAliases)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("covidash: [unterminated"))
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad join mode", func(c *Config) { c.Covidash.Pipeline.JoinMode = "left" }, true},
		{"bad rounding", func(c *Config) { c.Covidash.Pipeline.Rounding = "ceil" }, true},
		{"lowercase compression accepted", func(c *Config) { c.Covidash.Export.Parquet.Compression = "gzip" }, false},
		{"storage source needs ref", func(c *Config) { c.Covidash.Source.Type = "storage" }, true},
		{"parquet needs storage ref", func(c *Config) { c.Covidash.Export.Parquet.Enabled = true }, true},
		{"database needs db ref", func(c *Config) { c.Covidash.Export.Database.Enabled = true }, true},
		{"bad timezone", func(c *Config) { c.Covidash.System.Timezone = "Mars/Olympus" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, exception.ErrConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := NewConfig()
	cfg.Covidash.System.Timezone = "Asia/Tokyo"
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
}
