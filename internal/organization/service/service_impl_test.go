package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	orgrepo "github.com/meridianhq/meridian/internal/organization/repository"
	orgservice "github.com/meridianhq/meridian/internal/organization/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, orgdomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.APIKey{},
		&orgdomain.StellarSettings{},
	))

	svc := orgservice.NewService(orgservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: orgrepo.Provide(),
	})
	return db, svc
}

func seedKey(t *testing.T, db *gorm.DB, rawKey string, orgID snowflake.ID, env orgdomain.Environment) {
	t.Helper()
	assert.NoError(t, db.Create(&orgdomain.APIKey{
		ID:          snowflake.ID(1),
		OrgID:       orgID,
		Environment: env,
		KeyHash:     orgdomain.HashAPIKey(rawKey),
		CreatedAt:   time.Now().UTC(),
	}).Error)
}

func TestResolveAPIKey(t *testing.T) {
	db, svc := setup(t)
	seedKey(t, db, "sk_test_abc", 100, orgdomain.EnvironmentTestnet)

	res, err := svc.ResolveAPIKey(context.Background(), "sk_test_abc")
	assert.NoError(t, err)
	assert.Equal(t, snowflake.ID(100), res.OrgID)
	assert.Equal(t, orgdomain.EnvironmentTestnet, res.Environment)

	// Resolution updates the key's last-used marker.
	var key orgdomain.APIKey
	assert.NoError(t, db.First(&key, "id = ?", 1).Error)
	assert.NotNil(t, key.LastUsedAt)
}

func TestResolveAPIKeyUnknown(t *testing.T) {
	db, svc := setup(t)
	seedKey(t, db, "sk_test_abc", 100, orgdomain.EnvironmentTestnet)

	_, err := svc.ResolveAPIKey(context.Background(), "sk_test_other")
	assert.ErrorIs(t, err, orgdomain.ErrAPIKeyNotFound)

	_, err = svc.ResolveAPIKey(context.Background(), "   ")
	assert.ErrorIs(t, err, orgdomain.ErrAPIKeyNotFound)
}

func TestResolveStellarSettings(t *testing.T) {
	db, svc := setup(t)

	assert.NoError(t, db.Create(&orgdomain.StellarSettings{
		ID:                  snowflake.ID(1),
		OrgID:               100,
		Environment:         orgdomain.EnvironmentTestnet,
		DistributionAccount: "GDISTRIBUTION",
		WebhookSigningKey:   "00",
	}).Error)

	settings, err := svc.ResolveStellarSettings(context.Background(), orgdomain.Resolution{
		OrgID:       100,
		Environment: orgdomain.EnvironmentTestnet,
	})
	assert.NoError(t, err)
	assert.Equal(t, "GDISTRIBUTION", settings.DistributionAccount)

	// Same org, other environment: unconfigured.
	_, err = svc.ResolveStellarSettings(context.Background(), orgdomain.Resolution{
		OrgID:       100,
		Environment: orgdomain.EnvironmentMainnet,
	})
	assert.ErrorIs(t, err, orgdomain.ErrChainAccountNotConfigured)
}
