package domain

import "errors"

var (
	ErrNoItems              = errors.New("no_payout_items")
	ErrInvalidAmount        = errors.New("invalid_payout_amount")
	ErrInvalidWalletAddress = errors.New("invalid_wallet_address")
)
