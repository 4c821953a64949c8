package organization

import (
	"github.com/meridianhq/meridian/internal/organization/repository"
	"github.com/meridianhq/meridian/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
