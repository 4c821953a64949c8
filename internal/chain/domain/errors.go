package domain

import "errors"

var (
	// ErrUnavailable marks a transient network failure or timeout. The
	// caller's local state must stay untouched.
	ErrUnavailable = errors.New("chain_unavailable")
	// ErrRejected marks a charge the network refused. Terminal for the
	// attempt, not for the subscription.
	ErrRejected = errors.New("chain_rejected")
)
