package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/meridianhq/meridian/internal/events"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOutbox(t *testing.T) (*gorm.DB, *events.Outbox) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&events.BillingEvent{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	return db, events.NewOutbox(db, node)
}

func TestOutbox_PublishDeduplicates(t *testing.T) {
	ctx := context.Background()
	db, outbox := setupOutbox(t)

	event := events.Event{
		OrgID:     snowflake.ID(42),
		Type:      events.TypePaymentCompleted,
		Payload:   map[string]any{"checkout_id": "1001"},
		DedupeKey: "checkout:1001:succeeded",
	}

	assert.NoError(t, outbox.Publish(ctx, event))
	assert.NoError(t, outbox.Publish(ctx, event))

	var count int64
	assert.NoError(t, db.Model(&events.BillingEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOutbox_PublishRejectsMissingOrg(t *testing.T) {
	ctx := context.Background()
	_, outbox := setupOutbox(t)

	err := outbox.Publish(ctx, events.Event{Type: events.TypePayoutRequested})
	assert.Error(t, err)
}

func TestWithEvent_PublishesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	db, outbox := setupOutbox(t)

	_, err := events.WithEvent(ctx, zap.NewNop(), outbox,
		func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		},
		func(result string) events.Event {
			return events.Event{OrgID: 1, Type: events.TypePaymentFailed}
		},
	)
	assert.Error(t, err)

	var count int64
	assert.NoError(t, db.Model(&events.BillingEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	result, err := events.WithEvent(ctx, zap.NewNop(), outbox,
		func(ctx context.Context) (string, error) {
			return "done", nil
		},
		func(result string) events.Event {
			return events.Event{
				OrgID:   1,
				Type:    events.TypePaymentCompleted,
				Payload: map[string]any{"result": result},
			}
		},
	)
	assert.NoError(t, err)
	assert.Equal(t, "done", result)

	assert.NoError(t, db.Model(&events.BillingEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWithEvents_EmitsOnePerRow(t *testing.T) {
	ctx := context.Background()
	db, outbox := setupOutbox(t)

	rows, err := events.WithEvents(ctx, zap.NewNop(), outbox,
		func(ctx context.Context) ([]int64, error) {
			return []int64{10, 20, 30}, nil
		},
		func(ids []int64) []events.Event {
			out := make([]events.Event, 0, len(ids))
			for _, id := range ids {
				out = append(out, events.Event{
					OrgID:   7,
					Type:    events.TypePayoutRequested,
					Payload: map[string]any{"payout_id": id},
				})
			}
			return out
		},
	)
	assert.NoError(t, err)
	assert.Len(t, rows, 3)

	var count int64
	assert.NoError(t, db.Model(&events.BillingEvent{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
