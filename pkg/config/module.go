package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Covidash.System.Logging
}

// Module provides *Config and its narrower views to Fx.
// The application must supply EmbeddedConfig (and optionally the `name:"envFilePath"` string).
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
)
