package metering

import (
	"github.com/smallbiznis/telemetry/internal/metering/repository"
	"github.com/smallbiznis/telemetry/internal/metering/service"
	"go.uber.org/fx"
)

var Module = fx.Module("metering.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
