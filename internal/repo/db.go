// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation. All repo create and
// update helpers translate driver-level unique violations into this sentinel
// so services can treat "someone else got there first" as a control-flow
// branch rather than a failure.
var ErrDuplicate = errors.New("duplicate")

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// Migrate applies the schema plus the partial unique indexes that encode the
// core invariants: at most one verified submission per fingerprint, at most
// one in-flight claim per user, and at most one active conversion rate.
// GORM's index tags cannot express partial (WHERE-scoped) indexes, so these
// are created with raw DDL.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Submission{},
		&domain.RewardConversionRate{},
		&domain.RewardClaim{},
	); err != nil {
		return err
	}

	ddl := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_submissions_fingerprint_verified
		   ON submissions (receipt_fingerprint)
		   WHERE status = 'verified' AND receipt_fingerprint IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_claims_user_inflight
		   ON reward_claims (user_id)
		   WHERE status IN ('pending','submitted')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_rates_single_active
		   ON reward_conversion_rates (active)
		   WHERE active = 1`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint violation.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations, so
// the message is matched in addition to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
