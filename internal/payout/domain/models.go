package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

// Status tracks a payout through external settlement. Transitions past
// pending are driven by the settlement collaborator, not this pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Payout is a merchant's request to move settled funds to a wallet.
// Created only through the pipeline.
type Payout struct {
	ID            snowflake.ID          `gorm:"column:id;primaryKey" json:"id"`
	OrgID         snowflake.ID          `gorm:"column:org_id;index" json:"org_id"`
	Environment   orgdomain.Environment `gorm:"column:environment;type:text" json:"environment"`
	Amount        int64                 `gorm:"column:amount" json:"amount"`
	WalletAddress string                `gorm:"column:wallet_address" json:"wallet_address"`
	Memo          string                `gorm:"column:memo" json:"memo"`
	Status        Status                `gorm:"column:status;type:text" json:"status"`
	CreatedAt     time.Time             `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"column:updated_at" json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

// Request is one requested payout item.
type Request struct {
	Amount        int64  `json:"amount"`
	WalletAddress string `json:"wallet_address"`
	Memo          string `json:"memo"`
}
