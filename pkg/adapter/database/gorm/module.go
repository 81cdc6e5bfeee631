package gorm

import (
	"go.uber.org/fx"
)

// Module provides the Resolver. Dialect modules contribute the providers.
var Module = fx.Options(
	fx.Provide(NewResolverFromParams),
)
