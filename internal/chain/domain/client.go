package domain

import (
	"context"

	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

// Client is the injected chain capability. Both reads and the charge
// submission are blocking network calls with their own failure modes.
type Client interface {
	// GetTransactionStatus resolves the confirmation state of a known
	// transaction hash.
	GetTransactionStatus(ctx context.Context, env orgdomain.Environment, txHash string) (TxStatus, error)

	// FindPayment looks for a payment to the distribution account carrying
	// the given memo. Returns an unseen observation when no matching
	// transaction exists yet.
	FindPayment(ctx context.Context, env orgdomain.Environment, account, memo string) (Observation, error)

	// ChargeSubscription submits a recurring charge. Returns ErrRejected
	// when the network refused it and ErrUnavailable on transport failure.
	ChargeSubscription(ctx context.Context, env orgdomain.Environment, req ChargeRequest) (ChargeResult, error)
}
