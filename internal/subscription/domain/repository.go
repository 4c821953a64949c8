package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Subscription, error)

	// ClaimDue returns subscriptions in one of the given statuses whose
	// period ended at or before now, locking the rows against a
	// concurrently claiming sweep where the dialect supports it.
	ClaimDue(ctx context.Context, db *gorm.DB, statuses []Status, now time.Time, limit int) ([]Subscription, error)

	// AdvancePeriodIf moves the period boundary forward and restores the
	// subscription to active, only when the stored status and boundary
	// still match. Reports whether this caller won.
	AdvancePeriodIf(ctx context.Context, db *gorm.DB, id snowflake.ID, fromStatus Status, fromPeriodEnd, toPeriodEnd time.Time) (bool, error)

	// MarkPastDueIf transitions to past_due and increments the failed
	// cycle count, gated on the stored status and period boundary.
	MarkPastDueIf(ctx context.Context, db *gorm.DB, id snowflake.ID, fromStatus Status, fromPeriodEnd time.Time) (bool, error)

	// CancelIf transitions to canceled, gated on the stored status.
	CancelIf(ctx context.Context, db *gorm.DB, id snowflake.ID, fromStatus Status) (bool, error)

	// Activate sets the subscription active with a fresh period boundary
	// and clears the failed cycle count.
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, periodEnd time.Time) error
}
