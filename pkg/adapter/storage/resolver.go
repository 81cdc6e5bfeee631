package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// Resolver routes a connection name to the provider registered for its configured type.
type Resolver struct {
	cfg       *config.Config
	providers map[string]StorageProvider
}

// ResolverParams collects every provider registered in the "storage_providers" group.
type ResolverParams struct {
	fx.In
	Config    *config.Config
	Providers []StorageProvider `group:"storage_providers"`
}

// NewResolver creates a Resolver over providers.
func NewResolver(cfg *config.Config, providers ...StorageProvider) *Resolver {
	byType := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &Resolver{cfg: cfg, providers: byType}
}

// NewResolverFromParams is the Fx constructor for Resolver.
func NewResolverFromParams(p ResolverParams) *Resolver {
	return NewResolver(p.Config, p.Providers...)
}

// Resolve returns the connection called name.
func (r *Resolver) Resolve(ctx context.Context, name string) (StorageConnection, error) {
	sc, err := LookupConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[sc.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", sc.Type, name)
	}
	conn, err := provider.GetConnection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, sc.Type, err)
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var result *multierror.Error
	for t, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage provider '%s': %w", t, err))
		}
	}
	if result == nil {
		logger.Debugf("All storage connections closed.")
	}
	return result.ErrorOrNil()
}
