package observability

import (
	"github.com/smallbiznis/orderfeed/internal/observability/logger"
	"github.com/smallbiznis/orderfeed/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		logger.New,
		tracing.NewProvider,
	),
	// the provider installs itself as the global tracer on construction
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
