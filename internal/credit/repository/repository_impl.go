package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/meridianhq/meridian/internal/credit/domain"
	"github.com/meridianhq/meridian/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (id, org_id, customer_id, product_id, amount, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.OrgID,
		tx.CustomerID,
		tx.ProductID,
		tx.Amount,
		tx.Kind,
		tx.CreatedAt,
	).Error
}

func (r *repo) LockScope(ctx context.Context, gdb *gorm.DB, orgID, customerID, productID snowflake.ID) error {
	// SQLite serializes writers on its own, so the clause is skipped there.
	if !db.SupportsForUpdate(gdb) {
		return nil
	}
	var ids []int64
	return gdb.WithContext(ctx).Raw(
		`SELECT id
		 FROM credit_transactions
		 WHERE org_id = ? AND customer_id = ? AND product_id = ?
		 FOR UPDATE`,
		orgID,
		customerID,
		productID,
	).Scan(&ids).Error
}

func (r *repo) SumBalance(ctx context.Context, db *gorm.DB, orgID, customerID, productID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM credit_transactions
		 WHERE org_id = ? AND customer_id = ? AND product_id = ?`,
		orgID,
		customerID,
		productID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}
