// Package events stores domain events and couples their emission to
// successfully committed work.
package events

import (
	"github.com/bwmarrin/snowflake"
)

// Type is the closed set of domain event names delivered to merchants.
type Type string

const (
	TypePaymentCompleted    Type = "payment::completed"
	TypePaymentFailed       Type = "payment::failed"
	TypePayoutRequested     Type = "payout::requested"
	TypeSubscriptionUpdated Type = "subscription::updated"
)

// Event describes a domain event to store in the outbox.
type Event struct {
	OrgID     snowflake.ID
	Type      Type
	Payload   map[string]any
	DedupeKey string
}
