package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/meridianhq/meridian/internal/clock"
	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/events"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"github.com/meridianhq/meridian/internal/payout/domain"
	"github.com/meridianhq/meridian/internal/planlimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   domain.Repository
	Outbox *events.Outbox `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	planLimit int64
	repo      domain.Repository
	outbox    *events.Outbox
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payout.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		planLimit: p.Config.PayoutPlanLimit,
		repo:      p.Repo,
		outbox:    p.Outbox,
	}
}

func (s *Service) RequestPayouts(ctx context.Context, orgID snowflake.ID, env orgdomain.Environment, items []domain.Request) ([]domain.Payout, error) {
	if orgID == 0 || !env.Valid() {
		return nil, orgdomain.ErrInvalidEnvironment
	}
	if len(items) == 0 {
		return nil, domain.ErrNoItems
	}
	for _, item := range items {
		if item.Amount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		if strings.TrimSpace(item.WalletAddress) == "" {
			return nil, domain.ErrInvalidWalletAddress
		}
	}

	if err := planlimit.CheckLimit(ctx, s.db, "payouts", s.planLimit, orgID, env, "payout"); err != nil {
		return nil, err
	}

	return events.WithEvents(ctx, s.log, s.outbox,
		func(ctx context.Context) ([]domain.Payout, error) {
			now := s.clock.Now()
			payouts := make([]domain.Payout, 0, len(items))
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				for _, item := range items {
					payout := domain.Payout{
						ID:            s.genID.Generate(),
						OrgID:         orgID,
						Environment:   env,
						Amount:        item.Amount,
						WalletAddress: strings.TrimSpace(item.WalletAddress),
						Memo:          strings.TrimSpace(item.Memo),
						Status:        domain.StatusPending,
						CreatedAt:     now,
						UpdatedAt:     now,
					}
					if err := s.repo.Insert(ctx, tx, &payout); err != nil {
						return err
					}
					payouts = append(payouts, payout)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return payouts, nil
		},
		func(payouts []domain.Payout) []events.Event {
			out := make([]events.Event, 0, len(payouts))
			for _, payout := range payouts {
				out = append(out, events.Event{
					OrgID: payout.OrgID,
					Type:  events.TypePayoutRequested,
					Payload: map[string]any{
						"payout_id":      payout.ID.String(),
						"amount":         payout.Amount,
						"wallet_address": payout.WalletAddress,
						"memo":           payout.Memo,
						"environment":    string(payout.Environment),
					},
					DedupeKey: "payout:" + payout.ID.String() + ":requested",
				})
			}
			return out
		},
	)
}
