package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	SumBalance(ctx context.Context, db *gorm.DB, orgID, customerID, productID snowflake.ID) (int64, error)
	// LockScope must run inside a transaction. It takes row locks on the
	// scope's ledger rows so a following SumBalance reads a stable balance.
	LockScope(ctx context.Context, db *gorm.DB, orgID, customerID, productID snowflake.ID) error
}
