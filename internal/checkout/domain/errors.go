package domain

import "errors"

var (
	ErrCheckoutNotFound = errors.New("checkout_not_found")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)
