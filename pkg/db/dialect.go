package db

import (
	"fmt"

	"github.com/meridianhq/meridian/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		return sqlite.Open("meridian.db"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// SupportsSkipLocked reports whether the connected dialect understands
// FOR UPDATE SKIP LOCKED. SQLite serializes writers on its own, so the
// clause is both unsupported and unnecessary there.
func SupportsSkipLocked(gdb *gorm.DB) bool {
	if gdb == nil {
		return false
	}
	switch gdb.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}

// SupportsForUpdate reports whether the connected dialect understands a
// plain SELECT ... FOR UPDATE. Same dialect set as SupportsSkipLocked.
func SupportsForUpdate(gdb *gorm.DB) bool {
	return SupportsSkipLocked(gdb)
}
