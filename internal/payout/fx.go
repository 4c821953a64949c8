package payout

import (
	"github.com/meridianhq/meridian/internal/payout/repository"
	"github.com/meridianhq/meridian/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
