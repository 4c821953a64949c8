package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

// Interval is the recurring billing cadence of a product.
type Interval string

const (
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Product is the merchant catalog entry this engine reads. Catalog CRUD
// lives elsewhere; settlement and the charge scheduler only consume it.
type Product struct {
	ID             snowflake.ID          `gorm:"column:id;primaryKey" json:"id"`
	OrgID          snowflake.ID          `gorm:"column:org_id;index" json:"org_id"`
	Environment    orgdomain.Environment `gorm:"column:environment;type:text" json:"environment"`
	Name           string                `gorm:"column:name" json:"name"`
	Amount         int64                 `gorm:"column:amount" json:"amount"`
	AssetCode      string                `gorm:"column:asset_code" json:"asset_code"`
	CreditsGranted int64                 `gorm:"column:credits_granted" json:"credits_granted"`
	Interval       Interval              `gorm:"column:billing_interval;type:text" json:"billing_interval"`
	Active         bool                  `gorm:"column:active" json:"active"`
	CreatedAt      time.Time             `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time             `gorm:"column:updated_at" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// NextPeriodEnd advances a period boundary by one billing interval.
func (p Product) NextPeriodEnd(from time.Time) time.Time {
	switch p.Interval {
	case IntervalWeek:
		return from.AddDate(0, 0, 7)
	case IntervalYear:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}
