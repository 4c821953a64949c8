package chain

import (
	"github.com/meridianhq/meridian/internal/chain/domain"
	"github.com/meridianhq/meridian/internal/chain/horizon"
	"github.com/meridianhq/meridian/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func provideClient(cfg config.Config, log *zap.Logger) domain.Client {
	return horizon.New(cfg, log)
}

var Module = fx.Module("chain",
	fx.Provide(provideClient),
)
