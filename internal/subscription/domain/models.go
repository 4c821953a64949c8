// Package domain contains persistence models for recurring subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusPaused   Status = "paused"
)

// Subscription captures a customer's recurring billing agreement. A
// subscription is due when it is active and its current period has ended.
type Subscription struct {
	ID               snowflake.ID          `gorm:"column:id;primaryKey" json:"id"`
	OrgID            snowflake.ID          `gorm:"column:org_id;index" json:"org_id"`
	Environment      orgdomain.Environment `gorm:"column:environment;type:text" json:"environment"`
	CustomerID       snowflake.ID          `gorm:"column:customer_id;index" json:"customer_id"`
	ProductID        snowflake.ID          `gorm:"column:product_id" json:"product_id"`
	Status           Status                `gorm:"column:status;type:text;index" json:"status"`
	WalletAddress    string                `gorm:"column:wallet_address" json:"wallet_address"`
	CurrentPeriodEnd time.Time             `gorm:"column:current_period_end;index" json:"current_period_end"`
	FailedCycles     int                   `gorm:"column:failed_cycles" json:"failed_cycles"`
	CreatedAt        time.Time             `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"column:updated_at" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }
