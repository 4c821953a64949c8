package domain

import (
	"github.com/bwmarrin/snowflake"
)

// TxStatus is the confirmation state of an on-ledger transaction.
type TxStatus string

const (
	// TxStatusUnseen means the network has no record of the transaction yet.
	TxStatusUnseen    TxStatus = "unseen"
	// TxStatusPending means the transaction is observed but not yet in a
	// closed ledger.
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
	// TxStatusUnknown means the network answered ambiguously. Callers must
	// leave local state untouched and re-check later.
	TxStatusUnknown   TxStatus = "unknown"
)

// Observation is what a lookup for a checkout's payment returned.
type Observation struct {
	TxHash string
	Status TxStatus
}

// ChargeRequest describes one recurring charge to submit on-ledger.
type ChargeRequest struct {
	OrgID               snowflake.ID
	SubscriptionID      snowflake.ID
	ProductID           snowflake.ID
	WalletAddress       string
	DistributionAccount string
	AssetCode           string
	Amount              int64
	// IdempotencyKey makes a retried submission after a crash a no-op on
	// the charge backend. Stable per subscription and billing period.
	IdempotencyKey string
}

// ChargeResult carries the transaction identifier of an accepted charge.
type ChargeResult struct {
	TxHash string
}
