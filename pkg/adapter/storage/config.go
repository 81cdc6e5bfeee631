package storage

import (
	"fmt"

	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local" or "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS. Empty uses application default credentials.
	Endpoint        string `yaml:"endpoint"`         // Overrides the GCS endpoint, e.g. for an emulator.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
}

// LookupConfig decodes the storage connection called name from cfg.
func LookupConfig(cfg *config.Config, name string) (StorageConfig, error) {
	var sc StorageConfig
	raw, ok := cfg.Covidash.Adapter.Storage[name]
	if !ok {
		return sc, fmt.Errorf("storage configuration for name '%s' not found", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return sc, fmt.Errorf("invalid storage configuration format for '%s': expected a mapping, got %T", name, raw)
	}
	if err := configbinder.BindProperties(props, &sc); err != nil {
		return sc, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return sc, nil
}
