package planlimit_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	checkoutdomain "github.com/meridianhq/meridian/internal/checkout/domain"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"github.com/meridianhq/meridian/internal/planlimit"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&checkoutdomain.Checkout{}))
	return db
}

func TestCheckLimit(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	for i := 0; i < 3; i++ {
		assert.NoError(t, db.Create(&checkoutdomain.Checkout{
			ID:          snowflake.ID(i + 1),
			OrgID:       100,
			Environment: orgdomain.EnvironmentTestnet,
			Status:      checkoutdomain.StatusPending,
		}).Error)
	}

	// Under the limit.
	assert.NoError(t, planlimit.CheckLimit(ctx, db, "checkouts", 5, 100, orgdomain.EnvironmentTestnet, "checkout"))

	// At the limit.
	err := planlimit.CheckLimit(ctx, db, "checkouts", 3, 100, orgdomain.EnvironmentTestnet, "checkout")
	var exceeded *planlimit.Exceeded
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "checkout", exceeded.Domain)
	assert.Equal(t, int64(3), exceeded.Current)
	assert.Equal(t, int64(3), exceeded.Limit)

	// Other orgs and environments are not counted.
	assert.NoError(t, planlimit.CheckLimit(ctx, db, "checkouts", 3, 200, orgdomain.EnvironmentTestnet, "checkout"))
	assert.NoError(t, planlimit.CheckLimit(ctx, db, "checkouts", 3, 100, orgdomain.EnvironmentMainnet, "checkout"))
}

func TestCheckLimit_ZeroLimitMeansUnlimited(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	assert.NoError(t, planlimit.CheckLimit(ctx, db, "checkouts", 0, 100, orgdomain.EnvironmentTestnet, "checkout"))
}

func TestCheckLimit_RejectsUnknownTable(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	assert.Error(t, planlimit.CheckLimit(ctx, db, "organizations; DROP TABLE checkouts", 1, 100, orgdomain.EnvironmentTestnet, "checkout"))
}
