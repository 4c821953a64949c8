package checkout

import (
	"github.com/meridianhq/meridian/internal/checkout/repository"
	"github.com/meridianhq/meridian/internal/checkout/service"
	"github.com/meridianhq/meridian/internal/checkout/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewApplier),
)
