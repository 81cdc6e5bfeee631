package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/covidash/pkg/support/exception"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig                                      // EmbeddedConfig contains the raw bytes of the configuration file.
	EnvFilePath    string         `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// LoadConfig loads configuration in four layers: defaults from NewConfig, the
// embedded YAML (with ${VAR} placeholders expanded), the .env file and finally
// environment variables named after the yaml tags (COVIDASH_SERVER_ADDRESS, ...).
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	expanded, err := NewOsEnvironmentExpander().Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, exception.ErrConfig, "failed to expand environment placeholders", err, false)
	}

	defaults := NewConfig()
	cfg := NewConfig()
	// yaml.v3 merges into non-nil maps; the rename map must be replaced, not merged.
	cfg.Covidash.Pipeline.RenameColumns = nil
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewPipelineError(moduleName, exception.ErrConfig, "failed to unmarshal embedded config", err, false)
	}
	if cfg.Covidash.Pipeline.RenameColumns == nil {
		cfg.Covidash.Pipeline.RenameColumns = defaults.Covidash.Pipeline.RenameColumns
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewPipelineError(moduleName, exception.ErrConfig, "failed to load config from environment variables", err, false)
	}

	cfg.EmbeddedConfig = embeddedConfig
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads *Config and applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Covidash.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Covidash.System.Logging.Level)
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	cc := &c.Covidash
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"source.type", cc.Source.Type, []string{"http", "storage"}},
		{"pipeline.join_mode", cc.Pipeline.JoinMode, []string{"inner", "outer"}},
		{"pipeline.rounding", cc.Pipeline.Rounding, []string{"half_even", "half_up"}},
		{"tracing.protocol", cc.Tracing.Protocol, []string{"grpc", "http"}},
		{"export.parquet.compression", strings.ToUpper(cc.Export.Parquet.Compression), []string{"SNAPPY", "GZIP", "NONE"}},
	}
	for _, chk := range checks {
		if !contains(chk.allowed, chk.value) {
			return exception.NewPipelineError(moduleName, exception.ErrConfig,
				fmt.Sprintf("%s must be one of %v, got %q", chk.name, chk.allowed, chk.value), nil, false)
		}
	}
	if cc.Source.Type == "storage" && cc.Source.StorageRef == "" {
		return exception.NewPipelineError(moduleName, exception.ErrConfig, "source.storage_ref is required when source.type is storage", nil, false)
	}
	if cc.Export.Parquet.Enabled && cc.Export.Parquet.StorageRef == "" {
		return exception.NewPipelineError(moduleName, exception.ErrConfig, "export.parquet.storage_ref is required when parquet export is enabled", nil, false)
	}
	if cc.Export.Database.Enabled && cc.Export.Database.DBRef == "" {
		return exception.NewPipelineError(moduleName, exception.ErrConfig, "export.database.db_ref is required when database export is enabled", nil, false)
	}
	if _, err := time.LoadLocation(cc.System.Timezone); err != nil {
		return exception.NewPipelineError(moduleName, exception.ErrConfig, fmt.Sprintf("invalid system.timezone %q", cc.System.Timezone), err, false)
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Covidash.System.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// The variable name is the upper-cased path of yaml tags joined by "_".
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Interface {
			// COVIDASH_ADAPTER_DATABASE_APPDB_HOST=db -> Database["appdb"]["host"] = "db"
			loadMapOfPropertiesFromEnv(field, envVarName+"_")
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapOfPropertiesFromEnv fills a map[string]interface{} of connection property maps.
// The first name segment after prefix is the connection name, the rest is the property.
func loadMapOfPropertiesFromEnv(mapField reflect.Value, prefix string) {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndField := strings.SplitN(parts[0], "_", 2)
		if len(keyAndField) < 2 {
			continue
		}
		mapKey := strings.ToLower(keyAndField[0])
		property := strings.ToLower(keyAndField[1])

		props := map[string]interface{}{}
		if existing := mapField.MapIndex(reflect.ValueOf(mapKey)); existing.IsValid() {
			if m, ok := existing.Interface().(map[string]interface{}); ok {
				props = m
			}
		}
		props[property] = parts[1]
		mapField.SetMapIndex(reflect.ValueOf(mapKey), reflect.ValueOf(props))
	}
}

// setField sets the value of a reflect.Value field based on its kind.
// Slices of strings are comma-separated; string maps are "key=value" pairs separated by ";".
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		m := map[string]string{}
		for _, pair := range strings.Split(value, ";") {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("malformed map entry %q, expected key=value", pair)
			}
			m[kv[0]] = kv[1]
		}
		field.Set(reflect.ValueOf(m))
	}
	return nil
}
