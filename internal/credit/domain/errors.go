package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidProduct      = errors.New("invalid_product")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInsufficientCredits = errors.New("insufficient_credits")
)
