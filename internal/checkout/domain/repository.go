package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Checkout, error)

	// UpdateStatusIf advances the status only when the stored status still
	// matches from. The stored status is the optimistic concurrency token;
	// a second caller observing an already-applied transition loses the
	// race and reports false. A non-nil txHash is persisted alongside.
	UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, txHash *string) (bool, error)

	// ExpirePending moves pending checkouts whose deadline passed to
	// expired. Returns the number of rows moved.
	ExpirePending(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
