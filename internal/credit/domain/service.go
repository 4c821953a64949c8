package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Record appends a transaction with the given signed amount. Business
	// rules never reject it; only storage errors do.
	Record(ctx context.Context, orgID, customerID, productID snowflake.ID, amount int64, kind Kind) (*Transaction, error)

	// Balance sums the ledger for (customer, product). No history is zero,
	// not an error.
	Balance(ctx context.Context, orgID, customerID, productID snowflake.ID) (int64, error)

	// Debit converts a raw usage quantity into whole credits, rounding up,
	// and appends a debit. Returns ErrInsufficientCredits when the debit
	// would take the balance below zero.
	Debit(ctx context.Context, orgID, customerID, productID snowflake.ID, rawAmount, unitDivisor, unitsPerCredit int64) (*Transaction, error)
}
