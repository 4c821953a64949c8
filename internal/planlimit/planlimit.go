// Package planlimit gates resource creation on a plan's numeric limits.
package planlimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	orgdomain "github.com/meridianhq/meridian/internal/organization/domain"
	"gorm.io/gorm"
)

// Exceeded reports that an organization is at or over a plan limit.
type Exceeded struct {
	Domain  string
	Current int64
	Limit   int64
}

func (e *Exceeded) Error() string {
	return fmt.Sprintf("plan_limit_exceeded: %s %d/%d", e.Domain, e.Current, e.Limit)
}

var allowedTables = map[string]bool{
	"checkouts":     true,
	"subscriptions": true,
	"payouts":       true,
}

// CheckLimit counts live rows in the gated table for the organization and
// environment and returns Exceeded when count >= limit. Usage is a live
// count, never a stored counter, so it cannot drift.
//
// This is a pre-flight check, not a reservation. A racing insert between
// check and write can still push an org past its limit; callers needing a
// hard ceiling must also guard the insert itself.
func CheckLimit(ctx context.Context, db *gorm.DB, table string, limit int64, orgID snowflake.ID, env orgdomain.Environment, domainName string) error {
	if limit <= 0 {
		return nil
	}
	if !allowedTables[table] {
		return fmt.Errorf("unknown gated table %q", table)
	}

	var current int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM `+table+` WHERE org_id = ? AND environment = ?`,
		orgID,
		env,
	).Scan(&current).Error
	if err != nil {
		return err
	}

	if current >= limit {
		return &Exceeded{Domain: domainName, Current: current, Limit: limit}
	}
	return nil
}
