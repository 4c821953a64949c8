package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	chaindomain "github.com/meridianhq/meridian/internal/chain/domain"
	"github.com/meridianhq/meridian/internal/checkout/domain"
	"github.com/meridianhq/meridian/internal/clock"
	creditdomain "github.com/meridianhq/meridian/internal/credit/domain"
	"github.com/meridianhq/meridian/internal/events"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	productdomain "github.com/meridianhq/meridian/internal/product/domain"
	subscriptiondomain "github.com/meridianhq/meridian/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             domain.Repository
	OrgSvc           orgdomain.Service
	Chain            chaindomain.Client
	ProductRepo      productdomain.Repository
	CreditRepo       creditdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Outbox           *events.Outbox `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             domain.Repository
	orgSvc           orgdomain.Service
	chain            chaindomain.Client
	productRepo      productdomain.Repository
	creditRepo       creditdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	outbox           *events.Outbox
}

func NewService(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("checkout.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		orgSvc:           p.OrgSvc,
		chain:            p.Chain,
		productRepo:      p.ProductRepo,
		creditRepo:       p.CreditRepo,
		subscriptionRepo: p.SubscriptionRepo,
		outbox:           p.Outbox,
	}
}

func (s *Service) SweepAndRefreshStatus(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, checkoutID snowflake.ID) (*domain.Checkout, error) {
	checkout, err := s.load(ctx, orgID, env, checkoutID)
	if err != nil {
		return nil, err
	}
	if checkout.Status.Terminal() {
		return checkout, nil
	}

	obs, err := s.observe(ctx, env, checkout)
	if err != nil {
		if errors.Is(err, chaindomain.ErrUnavailable) {
			// Transient. Stored state stands until a later re-check.
			s.log.Warn("chain unavailable during sweep",
				zap.String("checkout_id", checkoutID.String()),
			)
			return checkout, nil
		}
		return nil, err
	}

	return s.ApplyObservation(ctx, orgID, env, checkoutID, obs)
}

func (s *Service) ApplyObservation(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, checkoutID snowflake.ID, obs chaindomain.Observation) (*domain.Checkout, error) {
	checkout, err := s.load(ctx, orgID, env, checkoutID)
	if err != nil {
		return nil, err
	}

	next, changed := domain.Transition(checkout.Status, obs.Status)
	if !changed {
		return checkout, nil
	}

	var txHash *string
	if obs.TxHash != "" && checkout.TransactionHash == nil {
		txHash = &obs.TxHash
	}

	type applied struct {
		checkout *domain.Checkout
		won      bool
	}

	result, err := events.WithEvent(ctx, s.log, s.outbox,
		func(ctx context.Context) (applied, error) {
			won := false
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var txErr error
				won, txErr = s.repo.UpdateStatusIf(ctx, tx, checkout.ID, checkout.Status, next, txHash)
				if txErr != nil {
					return txErr
				}
				if !won || next != domain.StatusSucceeded {
					return nil
				}
				return s.settle(ctx, tx, checkout)
			})
			if err != nil {
				return applied{}, err
			}

			if !won {
				// Lost the optimistic check to a concurrent caller. Their
				// transition already applied; re-read and report it.
				current, loadErr := s.load(ctx, orgID, env, checkoutID)
				if loadErr != nil {
					return applied{}, loadErr
				}
				return applied{checkout: current}, nil
			}

			updated := *checkout
			updated.Status = next
			if txHash != nil {
				updated.TransactionHash = txHash
			}
			return applied{checkout: &updated, won: true}, nil
		},
		func(a applied) events.Event {
			if !a.won {
				return events.Event{}
			}
			return settlementEvent(a.checkout)
		},
	)
	if err != nil {
		return nil, err
	}
	return result.checkout, nil
}

func (s *Service) load(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, checkoutID snowflake.ID) (*domain.Checkout, error) {
	checkout, err := s.repo.FindByID(ctx, s.db, orgID, checkoutID)
	if err != nil {
		return nil, err
	}
	if checkout == nil || checkout.Environment != env {
		return nil, domain.ErrCheckoutNotFound
	}
	return checkout, nil
}

func (s *Service) observe(ctx context.Context, env orgdomain.Environment, checkout *domain.Checkout) (chaindomain.Observation, error) {
	if checkout.TransactionHash != nil && *checkout.TransactionHash != "" {
		status, err := s.chain.GetTransactionStatus(ctx, env, *checkout.TransactionHash)
		if err != nil {
			return chaindomain.Observation{}, err
		}
		return chaindomain.Observation{TxHash: *checkout.TransactionHash, Status: status}, nil
	}

	settings, err := s.orgSvc.ResolveStellarSettings(ctx, orgdomain.Resolution{OrgID: checkout.OrgID, Environment: env})
	if err != nil {
		return chaindomain.Observation{}, err
	}
	return s.chain.FindPayment(ctx, env, settings.DistributionAccount, checkout.ID.String())
}

// settle applies the side effects of a won succeeded transition inside
// the same transaction: grant the product's credit allowance and start
// or extend any attached subscription.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, checkout *domain.Checkout) error {
	product, err := s.productRepo.FindByID(ctx, tx, checkout.OrgID, checkout.Environment, checkout.ProductID)
	if err != nil {
		return err
	}
	if product == nil {
		s.log.Warn("settled checkout references missing product",
			zap.String("checkout_id", checkout.ID.String()),
			zap.String("product_id", checkout.ProductID.String()),
		)
		return nil
	}

	now := s.clock.Now()

	if product.CreditsGranted > 0 {
		grant := &creditdomain.Transaction{
			ID:         s.genID.Generate(),
			OrgID:      checkout.OrgID,
			CustomerID: checkout.CustomerID,
			ProductID:  checkout.ProductID,
			Amount:     product.CreditsGranted,
			Kind:       creditdomain.KindGrant,
			CreatedAt:  now,
		}
		if err := s.creditRepo.Insert(ctx, tx, grant); err != nil {
			return err
		}
	}

	if checkout.SubscriptionID != nil {
		if err := s.subscriptionRepo.Activate(ctx, tx, *checkout.SubscriptionID, product.NextPeriodEnd(now)); err != nil {
			return err
		}
	}
	return nil
}

func settlementEvent(checkout *domain.Checkout) events.Event {
	var eventType events.Type
	switch checkout.Status {
	case domain.StatusSucceeded:
		eventType = events.TypePaymentCompleted
	case domain.StatusFailed:
		eventType = events.TypePaymentFailed
	default:
		return events.Event{}
	}

	payload := map[string]any{
		"checkout_id": checkout.ID.String(),
		"customer_id": checkout.CustomerID.String(),
		"product_id":  checkout.ProductID.String(),
		"amount":      checkout.Amount,
	}
	if checkout.TransactionHash != nil {
		payload["tx_hash"] = *checkout.TransactionHash
	}

	return events.Event{
		OrgID:     checkout.OrgID,
		Type:      eventType,
		Payload:   payload,
		DedupeKey: "checkout:" + checkout.ID.String() + ":" + string(checkout.Status),
	}
}
