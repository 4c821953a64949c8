package credit

import (
	"github.com/meridianhq/meridian/internal/credit/repository"
	"github.com/meridianhq/meridian/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
