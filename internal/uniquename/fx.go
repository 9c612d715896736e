package uniquename

import (
	"github.com/smallbiznis/telemetry/internal/uniquename/repository"
	"github.com/smallbiznis/telemetry/internal/uniquename/service"
	"go.uber.org/fx"
)

var Module = fx.Module("uniquename.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
