// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// RewardConversionRate model.
//
// Rates are append-only: an admin swap inserts the new rate and deactivates
// the old one in a single transaction. The partial unique index
// ux_rates_single_active guarantees at most one active row.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

// ActiveRate returns the single active conversion rate, or ErrNotFound when
// none is configured.
func ActiveRate(ctx context.Context, db *gorm.DB) (*domain.RewardConversionRate, error) {
	var r domain.RewardConversionRate
	err := db.WithContext(ctx).
		Where("active = ?", true).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SwapActiveRate deactivates the current active rate (if any) and inserts a
// new active rate, atomically. Existing rate rows are never mutated beyond
// the active flag, since claims snapshot points_per_b3tr by id.
func SwapActiveRate(ctx context.Context, db *gorm.DB, pointsPerB3TR int64) (*domain.RewardConversionRate, error) {
	r := &domain.RewardConversionRate{
		ID:            uuid.NewString(),
		PointsPerB3TR: pointsPerB3TR,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.RewardConversionRate{}).
			Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(r).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetRate fetches a rate row by id, or ErrNotFound.
func GetRate(ctx context.Context, db *gorm.DB, id string) (*domain.RewardConversionRate, error) {
	var r domain.RewardConversionRate
	err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}
