// Package webhook verifies and applies chain settlement notifications.
package webhook

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	"github.com/meridianhq/meridian/internal/checkout/domain"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	OrgSvc      orgdomain.Service
	CheckoutSvc domain.Service
}

// Applier authenticates webhook deliveries and feeds them through the
// same transition path the poll sweep uses.
type Applier struct {
	log         *zap.Logger
	orgSvc      orgdomain.Service
	checkoutSvc domain.Service
}

func NewApplier(p Params) *Applier {
	return &Applier{
		log:         p.Log.Named("checkout.webhook"),
		orgSvc:      p.OrgSvc,
		checkoutSvc: p.CheckoutSvc,
	}
}

type payloadBody struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// Apply verifies the signature over the raw payload with the org's
// per-environment signing key, then applies the carried observation.
// A bad signature changes nothing and returns ErrInvalidSignature.
func (a *Applier) Apply(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, checkoutID snowflake.ID, payload []byte, signature string) (*domain.Checkout, error) {
	settings, err := a.orgSvc.ResolveStellarSettings(ctx, orgdomain.Resolution{OrgID: orgID, Environment: env})
	if err != nil {
		return nil, err
	}

	if err := verify(settings.WebhookSigningKey, payload, signature); err != nil {
		a.log.Warn("webhook signature rejected",
			zap.String("checkout_id", checkoutID.String()),
			zap.Int64("org_id", int64(orgID)),
		)
		return nil, err
	}

	obs, err := parseObservation(payload)
	if err != nil {
		return nil, err
	}

	return a.checkoutSvc.ApplyObservation(ctx, orgID, env, checkoutID, obs)
}

func verify(signingKey string, payload []byte, signature string) error {
	keyBytes, err := hex.DecodeString(strings.TrimSpace(signingKey))
	if err != nil || len(keyBytes) != ed25519.PublicKeySize {
		return orgdomain.ErrInvalidWebhookSigningKey
	}

	sigBytes, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return domain.ErrInvalidSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(keyBytes), payload, sigBytes) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func parseObservation(payload []byte) (chaindomain.Observation, error) {
	var body payloadBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return chaindomain.Observation{}, domain.ErrInvalidPayload
	}

	var status chaindomain.TxStatus
	switch strings.ToLower(strings.TrimSpace(body.Status)) {
	case "confirmed", "success":
		status = chaindomain.TxStatusConfirmed
	case "failed":
		status = chaindomain.TxStatusFailed
	case "pending":
		status = chaindomain.TxStatusPending
	case "unseen":
		status = chaindomain.TxStatusUnseen
	default:
		return chaindomain.Observation{}, domain.ErrInvalidPayload
	}

	return chaindomain.Observation{
		TxHash: strings.TrimSpace(body.TxHash),
		Status: status,
	}, nil
}
