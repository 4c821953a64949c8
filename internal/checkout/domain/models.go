// Package domain contains the checkout settlement state machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

// Status is the settlement state of a checkout. Transitions are monotonic
// forward except pending -> expired; succeeded and failed are immutable.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusExpired
}

// Checkout is a single payment attempt tied to one on-ledger transaction.
type Checkout struct {
	ID              snowflake.ID          `gorm:"column:id;primaryKey" json:"id"`
	OrgID           snowflake.ID          `gorm:"column:org_id;index" json:"org_id"`
	Environment     orgdomain.Environment `gorm:"column:environment;type:text" json:"environment"`
	CustomerID      snowflake.ID          `gorm:"column:customer_id;index" json:"customer_id"`
	ProductID       snowflake.ID          `gorm:"column:product_id" json:"product_id"`
	SubscriptionID  *snowflake.ID         `gorm:"column:subscription_id" json:"subscription_id,omitempty"`
	TransactionHash *string               `gorm:"column:transaction_hash" json:"transaction_hash,omitempty"`
	Amount          int64                 `gorm:"column:amount" json:"amount"`
	Status          Status                `gorm:"column:status;type:text;index" json:"status"`
	ExpiresAt       time.Time             `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt       time.Time             `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time             `gorm:"column:updated_at" json:"updated_at"`
}

func (Checkout) TableName() string { return "checkouts" }
