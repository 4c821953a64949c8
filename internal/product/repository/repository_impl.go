package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"github.com/meridianhq/meridian/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID snowflake.ID, env orgdomain.Environment, id snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, environment, name, amount, asset_code, credits_granted, billing_interval, active, created_at, updated_at
		 FROM products
		 WHERE id = ? AND org_id = ? AND environment = ?`,
		id,
		orgID,
		env,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}
