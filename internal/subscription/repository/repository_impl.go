package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/meridianhq/meridian/internal/subscription/domain"
	"github.com/meridianhq/meridian/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, gdb *gorm.DB, orgID, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := gdb.WithContext(ctx).Raw(
		`SELECT id, org_id, environment, customer_id, product_id, status, wallet_address,
		        current_period_end, failed_cycles, created_at, updated_at
		 FROM subscriptions
		 WHERE id = ? AND org_id = ?`,
		id,
		orgID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) ClaimDue(ctx context.Context, gdb *gorm.DB, statuses []domain.Status, now time.Time, limit int) ([]domain.Subscription, error) {
	if len(statuses) == 0 {
		statuses = []domain.Status{domain.StatusActive}
	}

	query := `SELECT id, org_id, environment, customer_id, product_id, status, wallet_address,
	                 current_period_end, failed_cycles, created_at, updated_at
	          FROM subscriptions
	          WHERE status IN ? AND current_period_end <= ?
	          ORDER BY current_period_end
	          LIMIT ?`
	if db.SupportsSkipLocked(gdb) {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var subs []domain.Subscription
	err := gdb.WithContext(ctx).Raw(query, statuses, now, limit).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) AdvancePeriodIf(ctx context.Context, gdb *gorm.DB, id snowflake.ID, fromStatus domain.Status, fromPeriodEnd, toPeriodEnd time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, current_period_end = ?, failed_cycles = 0, updated_at = ?
		 WHERE id = ? AND status = ? AND current_period_end = ?`,
		domain.StatusActive,
		toPeriodEnd,
		time.Now().UTC(),
		id,
		fromStatus,
		fromPeriodEnd,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkPastDueIf(ctx context.Context, gdb *gorm.DB, id snowflake.ID, fromStatus domain.Status, fromPeriodEnd time.Time) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, failed_cycles = failed_cycles + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND current_period_end = ?`,
		domain.StatusPastDue,
		time.Now().UTC(),
		id,
		fromStatus,
		fromPeriodEnd,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CancelIf(ctx context.Context, gdb *gorm.DB, id snowflake.ID, fromStatus domain.Status) (bool, error) {
	result := gdb.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCanceled,
		time.Now().UTC(),
		id,
		fromStatus,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Activate(ctx context.Context, gdb *gorm.DB, id snowflake.ID, periodEnd time.Time) error {
	return gdb.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, current_period_end = ?, failed_cycles = 0, updated_at = ?
		 WHERE id = ?`,
		domain.StatusActive,
		periodEnd,
		time.Now().UTC(),
		id,
	).Error
}
