package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/meridianhq/meridian/internal/clock"
	"github.com/meridianhq/meridian/internal/config"
	"github.com/meridianhq/meridian/internal/events"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	payoutdomain "github.com/meridianhq/meridian/internal/payout/domain"
	payoutrepo "github.com/meridianhq/meridian/internal/payout/repository"
	payoutservice "github.com/meridianhq/meridian/internal/payout/service"
	"github.com/meridianhq/meridian/internal/planlimit"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, planLimit int64) (*gorm.DB, payoutdomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&payoutdomain.Payout{}, &events.BillingEvent{}))

	node, err := snowflake.NewNode(3)
	assert.NoError(t, err)

	svc := payoutservice.NewService(payoutservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Config: config.Config{PayoutPlanLimit: planLimit},
		Repo:   payoutrepo.Provide(),
		Outbox: events.NewOutbox(db, node),
	})
	return db, svc
}

func TestRequestPayouts_OneEventPerRow(t *testing.T) {
	ctx := context.Background()
	db, svc := setupService(t, 0)

	payouts, err := svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentTestnet, []payoutdomain.Request{
		{Amount: 1000, WalletAddress: "GWALLET1", Memo: "june"},
		{Amount: 2500, WalletAddress: "GWALLET2"},
		{Amount: 50, WalletAddress: "GWALLET3"},
	})
	assert.NoError(t, err)
	assert.Len(t, payouts, 3)

	for _, payout := range payouts {
		assert.Equal(t, payoutdomain.StatusPending, payout.Status)
		assert.NotZero(t, payout.ID)
	}

	var rows int64
	assert.NoError(t, db.Model(&payoutdomain.Payout{}).Count(&rows).Error)
	assert.Equal(t, int64(3), rows)

	var eventCount int64
	assert.NoError(t, db.Model(&events.BillingEvent{}).
		Where("event_type = ?", string(events.TypePayoutRequested)).
		Count(&eventCount).Error)
	assert.Equal(t, rows, eventCount)
}

func TestRequestPayouts_ValidationWritesNothing(t *testing.T) {
	ctx := context.Background()
	db, svc := setupService(t, 0)

	// One bad item poisons the whole batch before any row is written.
	_, err := svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentTestnet, []payoutdomain.Request{
		{Amount: 1000, WalletAddress: "GWALLET1"},
		{Amount: -5, WalletAddress: "GWALLET2"},
	})
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidAmount)

	var rows int64
	assert.NoError(t, db.Model(&payoutdomain.Payout{}).Count(&rows).Error)
	assert.Equal(t, int64(0), rows)

	var eventCount int64
	assert.NoError(t, db.Model(&events.BillingEvent{}).Count(&eventCount).Error)
	assert.Equal(t, int64(0), eventCount)
}

func TestRequestPayouts_EmptyBatchRejected(t *testing.T) {
	ctx := context.Background()
	_, svc := setupService(t, 0)

	_, err := svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentTestnet, nil)
	assert.ErrorIs(t, err, payoutdomain.ErrNoItems)
}

func TestRequestPayouts_MissingWalletRejected(t *testing.T) {
	ctx := context.Background()
	_, svc := setupService(t, 0)

	_, err := svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentTestnet, []payoutdomain.Request{
		{Amount: 1000, WalletAddress: "   "},
	})
	assert.ErrorIs(t, err, payoutdomain.ErrInvalidWalletAddress)
}

func TestRequestPayouts_PlanLimit(t *testing.T) {
	ctx := context.Background()
	_, svc := setupService(t, 2)

	_, err := svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentTestnet, []payoutdomain.Request{
		{Amount: 1000, WalletAddress: "GWALLET1"},
		{Amount: 2000, WalletAddress: "GWALLET2"},
	})
	assert.NoError(t, err)

	_, err = svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentTestnet, []payoutdomain.Request{
		{Amount: 3000, WalletAddress: "GWALLET3"},
	})
	var exceeded *planlimit.Exceeded
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "payout", exceeded.Domain)

	// A different environment has its own budget.
	_, err = svc.RequestPayouts(ctx, 100, orgdomain.EnvironmentMainnet, []payoutdomain.Request{
		{Amount: 3000, WalletAddress: "GWALLET3"},
	})
	assert.NoError(t, err)
}
