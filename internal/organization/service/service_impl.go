package service

import (
	"context"
	"strings"
	"time"

	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo orgdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo orgdomain.Repository
}

func NewService(p Params) orgdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("organization.service"),
		repo: p.Repo,
	}
}

func (s *Service) ResolveAPIKey(ctx context.Context, rawKey string) (*orgdomain.Resolution, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, orgdomain.ErrAPIKeyNotFound
	}

	key, err := s.repo.FindAPIKeyByHash(ctx, s.db, orgdomain.HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, orgdomain.ErrAPIKeyNotFound
	}
	if !key.Environment.Valid() {
		return nil, orgdomain.ErrInvalidEnvironment
	}

	// Best effort; a failed touch must not reject the request.
	if err := s.repo.TouchAPIKey(ctx, s.db, key.ID, time.Now().UTC()); err != nil {
		s.log.Warn("failed to touch api key", zap.Error(err))
	}

	return &orgdomain.Resolution{
		OrgID:       key.OrgID,
		Environment: key.Environment,
	}, nil
}

func (s *Service) ResolveStellarSettings(ctx context.Context, res orgdomain.Resolution) (*orgdomain.StellarSettings, error) {
	if res.OrgID == 0 || !res.Environment.Valid() {
		return nil, orgdomain.ErrInvalidEnvironment
	}

	settings, err := s.repo.FindStellarSettings(ctx, s.db, res.OrgID, res.Environment)
	if err != nil {
		return nil, err
	}
	if settings == nil || strings.TrimSpace(settings.DistributionAccount) == "" {
		return nil, orgdomain.ErrChainAccountNotConfigured
	}
	return settings, nil
}
