package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/meridianhq/meridian/internal/credit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("credit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, orgID, customerID, productID snowflake.ID, amount int64, kind domain.Kind) (*domain.Transaction, error) {
	if err := validateScope(orgID, customerID, productID); err != nil {
		return nil, err
	}
	if kind != domain.KindGrant && kind != domain.KindDebit {
		return nil, domain.ErrInvalidKind
	}

	tx := &domain.Transaction{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		CustomerID: customerID,
		ProductID:  productID,
		Amount:     amount,
		Kind:       kind,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Service) Balance(ctx context.Context, orgID, customerID, productID snowflake.ID) (int64, error) {
	if err := validateScope(orgID, customerID, productID); err != nil {
		return 0, err
	}
	return s.repo.SumBalance(ctx, s.db, orgID, customerID, productID)
}

func (s *Service) Debit(ctx context.Context, orgID, customerID, productID snowflake.ID, rawAmount, unitDivisor, unitsPerCredit int64) (*domain.Transaction, error) {
	if err := validateScope(orgID, customerID, productID); err != nil {
		return nil, err
	}
	if rawAmount < 0 {
		return nil, domain.ErrInvalidAmount
	}

	credits := ConvertToCredits(rawAmount, unitDivisor, unitsPerCredit)
	if credits == 0 {
		return nil, nil
	}

	var debit *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		// Row locks on the scope's ledger serialize racing debits; the
		// floor check below then reads a balance no concurrent debit can
		// move until this transaction commits.
		if err := s.repo.LockScope(ctx, dbtx, orgID, customerID, productID); err != nil {
			return err
		}
		balance, err := s.repo.SumBalance(ctx, dbtx, orgID, customerID, productID)
		if err != nil {
			return err
		}
		if balance-credits < 0 {
			return domain.ErrInsufficientCredits
		}

		debit = &domain.Transaction{
			ID:         s.genID.Generate(),
			OrgID:      orgID,
			CustomerID: customerID,
			ProductID:  productID,
			Amount:     -credits,
			Kind:       domain.KindDebit,
			CreatedAt:  time.Now().UTC(),
		}
		return s.repo.Insert(ctx, dbtx, debit)
	})
	if err != nil {
		return nil, err
	}
	return debit, nil
}

// ConvertToCredits maps a raw usage quantity into whole credits. Rounding
// is always up: a partial unit still consumes a full credit, and exactly
// divisible amounts consume exactly N.
func ConvertToCredits(rawAmount, unitDivisor, unitsPerCredit int64) int64 {
	if rawAmount <= 0 {
		return 0
	}
	if unitDivisor <= 0 {
		unitDivisor = 1
	}
	if unitsPerCredit <= 0 {
		unitsPerCredit = 1
	}
	denominator := unitDivisor * unitsPerCredit
	return (rawAmount + denominator - 1) / denominator
}

func validateScope(orgID, customerID, productID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if customerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if productID == 0 {
		return domain.ErrInvalidProduct
	}
	return nil
}
