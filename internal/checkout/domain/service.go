package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
)

type Service interface {
	// SweepAndRefreshStatus re-checks chain truth for one checkout and
	// advances its status. Terminal checkouts return as-is with no side
	// effect. Safe to call repeatedly and concurrently for the same
	// checkout.
	SweepAndRefreshStatus(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, checkoutID snowflake.ID) (*Checkout, error)

	// ApplyObservation drives the transition from an already-obtained
	// chain observation. The webhook applier and the sweep share this
	// path; settlement side effects fire only for the caller that wins
	// the transition.
	ApplyObservation(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, checkoutID snowflake.ID, obs chaindomain.Observation) (*Checkout, error)
}
