package domain

import "errors"

var (
	ErrOrganizationNotFound      = errors.New("organization_not_found")
	ErrAPIKeyNotFound            = errors.New("api_key_not_found")
	ErrInvalidEnvironment        = errors.New("invalid_environment")
	ErrChainAccountNotConfigured = errors.New("chain_account_not_configured")
	ErrInvalidWebhookSigningKey  = errors.New("invalid_webhook_signing_key")
)
