package domain

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrMissingWallet        = errors.New("missing_wallet")
)
