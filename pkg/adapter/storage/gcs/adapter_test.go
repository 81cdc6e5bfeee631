package gcs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/covidash/pkg/adapter/storage"
	"github.com/tigerroll/covidash/pkg/config"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, ClientOptions(storage.StorageConfig{}))
	assert.Len(t, ClientOptions(storage.StorageConfig{CredentialsFile: "/secrets/sa.json"}), 1)
	assert.Len(t, ClientOptions(storage.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}

func TestNewGCSAdapter_RequiresBucket(t *testing.T) {
	_, err := NewGCSAdapter(context.Background(), storage.StorageConfig{Type: ProviderType}, "remote")
	assert.ErrorContains(t, err, "bucket_name must be specified")
}

func TestProvider_TypeMismatch(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Covidash.Adapter.Storage = map[string]interface{}{
		"lake": map[string]interface{}{"type": "local", "base_dir": "/tmp"},
	}
	p := NewProvider(cfg)
	assert.Equal(t, ProviderType, p.Type())

	_, err := p.GetConnection(context.Background(), "lake")
	assert.ErrorContains(t, err, "type mismatch")
	assert.NoError(t, p.CloseAll())
}
