package repository

import (
	"context"

	"github.com/meridianhq/meridian/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (id, org_id, environment, amount, wallet_address, memo, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.OrgID,
		payout.Environment,
		payout.Amount,
		payout.WalletAddress,
		payout.Memo,
		payout.Status,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}
