package domain

import "context"

// Service resolves merchant credentials and chain settings. The billing
// core consumes it as an opaque collaborator.
type Service interface {
	// ResolveAPIKey maps a raw merchant key to its organization and
	// environment. Returns ErrAPIKeyNotFound for unknown keys.
	ResolveAPIKey(ctx context.Context, rawKey string) (*Resolution, error)

	// ResolveStellarSettings returns the org's chain settings for one
	// environment. Returns ErrChainAccountNotConfigured when the org has
	// no distribution account there.
	ResolveStellarSettings(ctx context.Context, res Resolution) (*StellarSettings, error)
}
