package migration

import (
	checkoutdomain "github.com/meridianhq/meridian/internal/checkout/domain"
	"github.com/meridianhq/meridian/internal/config"
	creditdomain "github.com/meridianhq/meridian/internal/credit/domain"
	"github.com/meridianhq/meridian/internal/events"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	payoutdomain "github.com/meridianhq/meridian/internal/payout/domain"
	productdomain "github.com/meridianhq/meridian/internal/product/domain"
	subscriptiondomain "github.com/meridianhq/meridian/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned migrations are written for postgres. Other
			// dialects are for local development only.
			return conn.AutoMigrate(
				&orgdomain.Organization{},
				&orgdomain.APIKey{},
				&orgdomain.StellarSettings{},
				&productdomain.Product{},
				&checkoutdomain.Checkout{},
				&subscriptiondomain.Subscription{},
				&creditdomain.Transaction{},
				&payoutdomain.Payout{},
				&events.BillingEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
