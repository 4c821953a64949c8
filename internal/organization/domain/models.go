// Package domain contains persistence models for organizations and their
// per-environment chain settings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Environment separates testnet money from mainnet money. Nothing may
// cross it.
type Environment string

const (
	EnvironmentTestnet Environment = "testnet"
	EnvironmentMainnet Environment = "mainnet"
)

// Valid reports whether the value is one of the two known environments.
func (e Environment) Valid() bool {
	return e == EnvironmentTestnet || e == EnvironmentMainnet
}

// Organization is a merchant account.
type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// APIKey maps a hashed merchant key to an organization and environment.
type APIKey struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"not null;index"`
	Environment Environment  `gorm:"type:text;not null"`
	KeyHash     string       `gorm:"type:text;not null;uniqueIndex"`
	LastUsedAt  *time.Time   `gorm:""`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// StellarSettings holds an organization's chain configuration for one
// environment: the distribution account receiving charges and the ed25519
// public key its webhook notifications are signed with.
type StellarSettings struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	OrgID               snowflake.ID `gorm:"not null;index;uniqueIndex:ux_stellar_settings_org_env,priority:1"`
	Environment         Environment  `gorm:"type:text;not null;uniqueIndex:ux_stellar_settings_org_env,priority:2"`
	DistributionAccount string       `gorm:"type:text;not null"`
	// WebhookSigningKey is the hex-encoded 32-byte ed25519 public key.
	WebhookSigningKey string    `gorm:"type:text;not null"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StellarSettings) TableName() string { return "stellar_settings" }

// Resolution is the outcome of resolving an API key.
type Resolution struct {
	OrgID       snowflake.ID
	Environment Environment
}
