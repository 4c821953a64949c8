package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent is the stored form of a domain event awaiting delivery.
type BillingEvent struct {
	ID        snowflake.ID      `gorm:"column:id;primaryKey" json:"id"`
	OrgID     snowflake.ID      `gorm:"column:org_id;uniqueIndex:idx_billing_events_org_dedupe" json:"org_id"`
	EventType string            `gorm:"column:event_type" json:"event_type"`
	Payload   datatypes.JSONMap `gorm:"column:payload" json:"payload"`
	DedupeKey *string           `gorm:"column:dedupe_key;uniqueIndex:idx_billing_events_org_dedupe" json:"dedupe_key,omitempty"`
	Published bool              `gorm:"column:published" json:"published"`
	CreatedAt time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (BillingEvent) TableName() string { return "billing_events" }
