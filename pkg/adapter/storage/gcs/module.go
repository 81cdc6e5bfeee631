package gcs

import (
	"go.uber.org/fx"
)

// Module registers the GCS Provider in the "storage_providers" group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
