// Package config provides the configuration structures for covidash.
package config

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// RetryConfig holds configuration for exponential backoff.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`     // MaxAttempts is the maximum number of attempts, including the first one.
	InitialInterval int     `yaml:"initial_interval"` // InitialInterval is the initial backoff interval in milliseconds.
	MaxInterval     int     `yaml:"max_interval"`     // MaxInterval is the maximum backoff interval in milliseconds.
	Factor          float64 `yaml:"factor"`           // Factor is the interval multiplier.
}

// SourceConfig selects and configures where the three raw tables come from.
type SourceConfig struct {
	// Type is "http" (fetch the upstream CSVs) or "storage" (read them from a storage connection).
	Type string `yaml:"type"`
	// ConfirmedURL, RecoveredURL and DeathsURL are the upstream CSV locations for Type "http".
	ConfirmedURL string `yaml:"confirmed_url"`
	RecoveredURL string `yaml:"recovered_url"`
	DeathsURL    string `yaml:"deaths_url"`
	// TimeoutSeconds bounds a single HTTP request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Retry configures retries of transient HTTP failures.
	Retry RetryConfig `yaml:"retry"`
	// StorageRef names the storage connection for Type "storage".
	StorageRef string `yaml:"storage_ref"`
	// ConfirmedObject, RecoveredObject and DeathsObject are object names within StorageRef.
	ConfirmedObject string `yaml:"confirmed_object"`
	RecoveredObject string `yaml:"recovered_object"`
	DeathsObject    string `yaml:"deaths_object"`
}

// PipelineConfig configures the transformation stages.
type PipelineConfig struct {
	// DropColumns are removed from every raw table before melting.
	DropColumns []string `yaml:"drop_columns"`
	// RenameColumns maps a raw column name to its new name. One of the targets must be "country".
	RenameColumns map[string]string `yaml:"rename_columns"`
	// Tolerant makes missing drop/rename columns a no-op instead of a SchemaError.
	Tolerant bool `yaml:"tolerant"`
	// JoinMode is "inner" or "outer".
	JoinMode string `yaml:"join_mode"`
	// Rounding is "half_even" or "half_up".
	Rounding string `yaml:"rounding"`
	// Parallel runs the per-metric chains concurrently.
	Parallel bool `yaml:"parallel"`
	// CountryAliases rewrites country names before aggregation.
	CountryAliases map[string]string `yaml:"country_aliases"`
}

// RefreshConfig configures snapshot rebuilding.
type RefreshConfig struct {
	// IntervalSeconds is the period between background refreshes. 0 disables them.
	IntervalSeconds int `yaml:"interval_seconds"`
	// FailOnStartup aborts application start when the initial refresh fails.
	FailOnStartup bool `yaml:"fail_on_startup"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Address                string   `yaml:"address"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
}

// ParquetExportConfig configures the Parquet exporter.
type ParquetExportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	StorageRef  string `yaml:"storage_ref"`
	BasePath    string `yaml:"base_path"`
	Compression string `yaml:"compression"` // SNAPPY, GZIP or NONE.
}

// DatabaseExportConfig configures the database exporter.
type DatabaseExportConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DBRef          string `yaml:"db_ref"`
	BatchSize      int    `yaml:"batch_size"`
	Migrate        bool   `yaml:"migrate"`
	MigrationsPath string `yaml:"migrations_path"`
}

// ExportConfig groups the snapshot exporters.
type ExportConfig struct {
	Parquet  ParquetExportConfig  `yaml:"parquet"`
	Database DatabaseExportConfig `yaml:"database"`
}

// MetricsConfig configures the Prometheus recorder.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // OTLP collector endpoint, e.g. "localhost:4317".
	Protocol    string  `yaml:"protocol"` // "grpc" or "http".
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// AdapterConfig holds raw connection settings keyed by connection name.
// Each entry is decoded by the adapter that owns it.
type AdapterConfig struct {
	Database map[string]interface{} `yaml:"database"`
	Storage  map[string]interface{} `yaml:"storage"`
}

// CovidashConfig holds all configuration under the "covidash" top-level key.
type CovidashConfig struct {
	Source   SourceConfig   `yaml:"source"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Server   ServerConfig   `yaml:"server"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	System   SystemConfig   `yaml:"system"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Covidash CovidashConfig `yaml:"covidash"`
	// EmbeddedConfig holds the raw bytes the configuration was loaded from.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

const upstreamBaseURL = "https://raw.githubusercontent.com/CSSEGISandData/COVID-19/master/csse_covid_19_data/csse_covid_19_time_series/"

// Upstream object names, shared by the HTTP defaults and the storage source defaults.
const (
	ConfirmedFileName = "time_series_covid19_confirmed_global.csv"
	RecoveredFileName = "time_series_covid19_recovered_global.csv"
	DeathsFileName    = "time_series_covid19_deaths_global.csv"
)

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Covidash: CovidashConfig{
			Source: SourceConfig{
				Type:           "http",
				ConfirmedURL:   upstreamBaseURL + ConfirmedFileName,
				RecoveredURL:   upstreamBaseURL + RecoveredFileName,
				DeathsURL:      upstreamBaseURL + DeathsFileName,
				TimeoutSeconds: 30,
				Retry: RetryConfig{
					MaxAttempts:     4,
					InitialInterval: 500,
					MaxInterval:     10000,
					Factor:          2.0,
				},
				ConfirmedObject: ConfirmedFileName,
				RecoveredObject: RecoveredFileName,
				DeathsObject:    DeathsFileName,
			},
			Pipeline: PipelineConfig{
				DropColumns:    []string{"Province/State", "Lat", "Long"},
				RenameColumns:  map[string]string{"Country/Region": "country"},
				JoinMode:       "inner",
				Rounding:       "half_up",
				CountryAliases: map[string]string{},
			},
			Server: ServerConfig{
				Address:                ":8050",
				ReadTimeoutSeconds:     15,
				WriteTimeoutSeconds:    30,
				ShutdownTimeoutSeconds: 10,
				AllowedOrigins:         []string{"*"},
			},
			Export: ExportConfig{
				Parquet: ParquetExportConfig{
					BasePath:    "covid_daily",
					Compression: "SNAPPY",
				},
				Database: DatabaseExportConfig{
					BatchSize:      500,
					MigrationsPath: "resources/migrations",
				},
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "covidash",
			},
			Tracing: TracingConfig{
				ServiceName: "covidash",
				Protocol:    "grpc",
				SampleRatio: 1.0,
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Adapter: AdapterConfig{
				Database: map[string]interface{}{},
				Storage:  map[string]interface{}{},
			},
		},
	}
}
