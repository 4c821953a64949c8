package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"gorm.io/gorm"
)

// Repository is read-only. Catalog writes happen outside this engine.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, env orgdomain.Environment, id snowflake.ID) (*Product, error)
}
