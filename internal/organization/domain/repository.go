package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindAPIKeyByHash(ctx context.Context, db *gorm.DB, keyHash string) (*APIKey, error)
	TouchAPIKey(ctx context.Context, db *gorm.DB, id snowflake.ID, usedAt time.Time) error
	FindStellarSettings(ctx context.Context, db *gorm.DB, orgID snowflake.ID, env Environment) (*StellarSettings, error)
}
