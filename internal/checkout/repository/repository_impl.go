package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/meridianhq/meridian/internal/checkout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Checkout, error) {
	var checkout domain.Checkout
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, environment, customer_id, product_id, subscription_id,
		        transaction_hash, amount, status, expires_at, created_at, updated_at
		 FROM checkouts
		 WHERE id = ? AND org_id = ?`,
		id,
		orgID,
	).Scan(&checkout).Error
	if err != nil {
		return nil, err
	}
	if checkout.ID == 0 {
		return nil, nil
	}
	return &checkout, nil
}

func (r *repo) UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, txHash *string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE checkouts
		 SET status = ?, transaction_hash = COALESCE(?, transaction_hash), updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		txHash,
		time.Now().UTC(),
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ExpirePending(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE checkouts
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND expires_at <= ?`,
		domain.StatusExpired,
		now,
		domain.StatusPending,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
