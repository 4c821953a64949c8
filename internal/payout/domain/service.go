package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

type Service interface {
	// RequestPayouts validates every item, inserts all pending rows in one
	// transaction, and emits one payout::requested event per created row
	// strictly after the rows are durable. Validation failure writes
	// nothing and emits nothing.
	RequestPayouts(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, items []Request) ([]Payout, error)
}
