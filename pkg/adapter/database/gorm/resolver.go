package gorm

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/covidash/pkg/adapter/database"
	"github.com/tigerroll/covidash/pkg/config"
)

// Resolver routes a connection name to the DBProvider of its configured type.
type Resolver struct {
	cfg       *config.Config
	providers map[string]database.DBProvider
}

// ResolverParams collects every provider registered in the "db_providers" group.
type ResolverParams struct {
	fx.In
	Config    *config.Config
	Providers []database.DBProvider `group:"db_providers"`
}

// NewResolver creates a Resolver over providers.
func NewResolver(cfg *config.Config, providers ...database.DBProvider) *Resolver {
	byType := make(map[string]database.DBProvider, len(providers))
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
func (r *Resolver) Resolve(name string) (database.DBConnection, error) {
	dc, err := database.LookupConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[dc.Type]
	if !ok {
		return nil, fmt.Errorf("no database provider found for type '%s' (connection '%s')", dc.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var result *multierror.Error
	for t, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("database provider '%s': %w", t, err))
		}
	}
	return result.ErrorOrNil()
}
