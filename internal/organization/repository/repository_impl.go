package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orgdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orgdomain.Organization, error) {
	var org orgdomain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, created_at, updated_at
		 FROM organizations
		 WHERE id = ?`,
		id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repo) FindAPIKeyByHash(ctx context.Context, db *gorm.DB, keyHash string) (*orgdomain.APIKey, error) {
	var key orgdomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, environment, key_hash, last_used_at, created_at
		 FROM api_keys
		 WHERE key_hash = ?`,
		keyHash,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) TouchAPIKey(ctx context.Context, db *gorm.DB, id snowflake.ID, usedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		usedAt,
		id,
	).Error
}

func (r *repo) FindStellarSettings(ctx context.Context, db *gorm.DB, orgID snowflake.ID, env orgdomain.Environment) (*orgdomain.StellarSettings, error) {
	var settings orgdomain.StellarSettings
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, environment, distribution_account, webhook_signing_key, created_at, updated_at
		 FROM stellar_settings
		 WHERE org_id = ? AND environment = ?`,
		orgID,
		env,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.ID == 0 {
		return nil, nil
	}
	return &settings, nil
}
