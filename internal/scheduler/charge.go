package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	"github.com/meridianhq/meridian/internal/events"
	obsmetrics "github.com/meridianhq/meridian/internal/observability/metrics"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	subscriptiondomain "github.com/meridianhq/meridian/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const chargeSweepName = "charge_due_subscriptions"

// ChargeIdempotencyKey is the stable token passed to the chain client so
// a charge retried after a crash cannot double-spend. One key per
// subscription per billing period.
func ChargeIdempotencyKey(sub *subscriptiondomain.Subscription) string {
	return fmt.Sprintf("sub:%s:%d", sub.ID.String(), sub.CurrentPeriodEnd.UTC().Unix())
}

// ChargeDueSubscriptionsJob sweeps every due subscription and drives one
// charge attempt each. One subscription's failure never aborts the sweep
// for the others; outcomes are collected per item.
func (s *Scheduler) ChargeDueSubscriptionsJob(ctx context.Context) error {
	if s.limiter.Enabled() {
		token, ok, err := s.limiter.TryLockSweep(ctx, chargeSweepName)
		if err != nil {
			return err
		}
		if !ok {
			obsmetrics.Scheduler().IncSweepLockSkip()
			s.log.Info("charge sweep already held by another replica")
			return nil
		}
		defer func() {
			if releaseErr := s.limiter.ReleaseSweep(context.WithoutCancel(ctx), chargeSweepName, token); releaseErr != nil {
				s.log.Warn("sweep lock release failed", zap.Error(releaseErr))
			}
		}()
	}

	statuses := []subscriptiondomain.Status{subscriptiondomain.StatusActive}
	if s.dunning.Get().RetryPastDue {
		statuses = append(statuses, subscriptiondomain.StatusPastDue)
	}

	now := s.clock.Now()
	var jobErr error
	seen := make(map[string]bool)

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		var batch []subscriptiondomain.Subscription
		// The claim transaction commits before any charge runs, so SKIP
		// LOCKED only dedupes claimers racing within the same sweep
		// window. Cross-sweep safety rests on the redis sweep lock, the
		// CAS period advance, and the charge idempotency key.
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var claimErr error
			batch, claimErr = s.subscriptionRepo.ClaimDue(ctx, tx, statuses, now, s.cfg.BatchSize)
			return claimErr
		})
		if err != nil {
			return errors.Join(jobErr, err)
		}

		progressed := false
		for i := range batch {
			sub := &batch[i]
			if seen[sub.ID.String()] {
				continue
			}
			seen[sub.ID.String()] = true
			progressed = true

			if err := s.chargeOne(ctx, sub); err != nil {
				jobErr = errors.Join(jobErr, err)
			}
		}

		if len(batch) < s.cfg.BatchSize || !progressed {
			break
		}
	}

	return jobErr
}

// chargeOne attempts a single subscription charge. A nil return means the
// item reached a decided outcome (including skip); an error means a
// transient condition left it for the next sweep.
func (s *Scheduler) chargeOne(parent context.Context, sub *subscriptiondomain.Subscription) error {
	log := s.log.With(
		zap.String("subscription_id", sub.ID.String()),
		zap.Int64("org_id", int64(sub.OrgID)),
		zap.String("environment", string(sub.Environment)),
	)
	schedMetrics := obsmetrics.Scheduler()

	if strings.TrimSpace(sub.WalletAddress) == "" {
		// No charge method on file. A per-subscription condition, not a
		// scheduler failure.
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeNoWallet)
		log.Info("subscription has no wallet on file, skipping charge")
		return nil
	}

	product, err := s.productRepo.FindByID(parent, s.db, sub.OrgID, sub.Environment, sub.ProductID)
	if err != nil {
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
		return fmt.Errorf("subscription %s: load product: %w", sub.ID, err)
	}
	if product == nil {
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
		log.Warn("subscription references missing product",
			zap.String("product_id", sub.ProductID.String()),
		)
		return nil
	}

	settings, err := s.orgSvc.ResolveStellarSettings(parent, orgdomain.Resolution{
		OrgID:       sub.OrgID,
		Environment: sub.Environment,
	})
	if err != nil {
		if errors.Is(err, orgdomain.ErrChainAccountNotConfigured) {
			schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeDeferred)
			log.Warn("org chain account unconfigured, deferring charge")
			return nil
		}
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
		return fmt.Errorf("subscription %s: resolve settings: %w", sub.ID, err)
	}

	// Each chain call gets its own deadline so one slow charge cannot eat
	// the whole sweep. A timed-out charge is not retried in this sweep;
	// the idempotency key makes the next attempt safe.
	chargeCtx, cancel := context.WithTimeout(parent, s.cfg.ChargeTimeout)
	defer cancel()

	result, err := s.chain.ChargeSubscription(chargeCtx, sub.Environment, chaindomain.ChargeRequest{
		OrgID:               sub.OrgID,
		SubscriptionID:      sub.ID,
		ProductID:           sub.ProductID,
		WalletAddress:       sub.WalletAddress,
		DistributionAccount: settings.DistributionAccount,
		AssetCode:           product.AssetCode,
		Amount:              product.Amount,
		IdempotencyKey:      ChargeIdempotencyKey(sub),
	})

	switch {
	case err == nil:
		return s.recordChargeSuccess(parent, sub, product.NextPeriodEnd(sub.CurrentPeriodEnd), result.TxHash, log)
	case errors.Is(err, chaindomain.ErrRejected):
		return s.recordChargeFailure(parent, sub, log)
	case errors.Is(err, chaindomain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeDeferred)
		log.Warn("charge deferred on transient chain failure", zap.Error(err))
		return fmt.Errorf("subscription %s: %w", sub.ID, err)
	default:
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
		return fmt.Errorf("subscription %s: charge: %w", sub.ID, err)
	}
}

func (s *Scheduler) recordChargeSuccess(ctx context.Context, sub *subscriptiondomain.Subscription, nextPeriodEnd time.Time, txHash string, log *zap.Logger) error {
	schedMetrics := obsmetrics.Scheduler()

	won, err := s.subscriptionRepo.AdvancePeriodIf(ctx, s.db, sub.ID, sub.Status, sub.CurrentPeriodEnd, nextPeriodEnd)
	if err != nil {
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
		return fmt.Errorf("subscription %s: advance period: %w", sub.ID, err)
	}
	if !won {
		// A concurrent sweep already moved the boundary. The chain charge
		// was idempotent, so nothing was double-spent.
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeLostRace)
		log.Info("period advance lost to a concurrent sweep")
		return nil
	}

	schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeCharged)
	log.Info("subscription charged",
		zap.String("tx_hash", txHash),
		zap.Time("next_period_end", nextPeriodEnd),
	)
	s.publishSubscriptionUpdated(ctx, sub, subscriptiondomain.StatusActive, nextPeriodEnd)
	return nil
}

func (s *Scheduler) recordChargeFailure(ctx context.Context, sub *subscriptiondomain.Subscription, log *zap.Logger) error {
	schedMetrics := obsmetrics.Scheduler()

	won, err := s.subscriptionRepo.MarkPastDueIf(ctx, s.db, sub.ID, sub.Status, sub.CurrentPeriodEnd)
	if err != nil {
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
		return fmt.Errorf("subscription %s: mark past due: %w", sub.ID, err)
	}
	if !won {
		schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeLostRace)
		return nil
	}

	failedCycles := sub.FailedCycles + 1
	if failedCycles >= s.dunning.Get().MaxFailedCycles {
		canceled, err := s.subscriptionRepo.CancelIf(ctx, s.db, sub.ID, subscriptiondomain.StatusPastDue)
		if err != nil {
			schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeStoreError)
			return fmt.Errorf("subscription %s: cancel: %w", sub.ID, err)
		}
		if canceled {
			schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomeCanceled)
			log.Warn("subscription canceled after repeated charge failures",
				zap.Int("failed_cycles", failedCycles),
			)
			s.publishSubscriptionUpdated(ctx, sub, subscriptiondomain.StatusCanceled, sub.CurrentPeriodEnd)
			return nil
		}
	}

	schedMetrics.IncChargeOutcome(obsmetrics.ChargeOutcomePastDue)
	log.Warn("subscription charge rejected, marked past due",
		zap.Int("failed_cycles", failedCycles),
	)
	s.publishSubscriptionUpdated(ctx, sub, subscriptiondomain.StatusPastDue, sub.CurrentPeriodEnd)
	return nil
}

func (s *Scheduler) publishSubscriptionUpdated(ctx context.Context, sub *subscriptiondomain.Subscription, status subscriptiondomain.Status, periodEnd time.Time) {
	if s.outbox == nil {
		return
	}
	event := events.Event{
		OrgID: sub.OrgID,
		Type:  events.TypeSubscriptionUpdated,
		Payload: map[string]any{
			"subscription_id":    sub.ID.String(),
			"customer_id":        sub.CustomerID.String(),
			"status":             string(status),
			"current_period_end": periodEnd.UTC().Format(time.RFC3339),
			"environment":        string(sub.Environment),
		},
		DedupeKey: fmt.Sprintf("sub:%s:%d:%s", sub.ID.String(), periodEnd.UTC().Unix(), status),
	}
	if err := s.outbox.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
	}
}
