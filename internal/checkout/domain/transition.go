package domain

import (
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
)

// Transition maps a stored status and a chain observation to the next
// status. It is the single state machine behind both the poll sweep and
// the webhook applier; both call sites converge by construction.
//
// An ambiguous observation never moves the status: unknown answers and
// unseen transactions leave the checkout where it is, pending a later
// re-check. Terminal statuses are fixed points regardless of observation.
func Transition(current Status, observed chaindomain.TxStatus) (Status, bool) {
	if current.Terminal() {
		return current, false
	}

	switch observed {
	case chaindomain.TxStatusPending:
		if current == StatusPending {
			return StatusProcessing, true
		}
		return current, false
	case chaindomain.TxStatusConfirmed:
		return StatusSucceeded, true
	case chaindomain.TxStatusFailed:
		return StatusFailed, true
	default:
		// unseen or unknown
		return current, false
	}
}
