package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind classifies a credit transaction.
type Kind string

const (
	KindGrant Kind = "grant"
	KindDebit Kind = "debit"
)

// Transaction is one append-only row of the credit ledger. Corrections are
// new offsetting rows, never edits.
type Transaction struct {
	ID         snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"column:org_id;index:idx_credit_tx_scope,priority:1" json:"org_id"`
	CustomerID snowflake.ID `gorm:"column:customer_id;index:idx_credit_tx_scope,priority:2" json:"customer_id"`
	ProductID  snowflake.ID `gorm:"column:product_id;index:idx_credit_tx_scope,priority:3" json:"product_id"`
	Amount     int64        `gorm:"column:amount" json:"amount"`
	Kind       Kind         `gorm:"column:kind;type:text" json:"kind"`
	CreatedAt  time.Time    `gorm:"column:created_at" json:"created_at"`
}

func (Transaction) TableName() string { return "credit_transactions" }
