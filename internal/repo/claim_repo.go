// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// RewardClaim model.
//
// Two unique indexes do the heavy lifting for the claim orchestrator:
// ux_claim_user_client makes (user_id, client_claim_id) the request-level
// idempotency key, and the partial index ux_claims_user_inflight serializes
// "at most one pending/submitted claim per user" at the data layer. Both
// violations surface as ErrDuplicate and are resolved by re-reading.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

// CreateClaim inserts a new pending claim. ErrDuplicate signals either a
// replayed client_claim_id or another in-flight claim for the same user.
func CreateClaim(ctx context.Context, db *gorm.DB, claim *domain.RewardClaim) error {
	claim.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(claim).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetClaim fetches a claim by ID scoped to its owner, or ErrNotFound.
func GetClaim(ctx context.Context, db *gorm.DB, id, userID string) (*domain.RewardClaim, error) {
	var c domain.RewardClaim
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClaimByClientID fetches a claim by its idempotency key, or ErrNotFound.
func GetClaimByClientID(ctx context.Context, db *gorm.DB, userID, clientClaimID string) (*domain.RewardClaim, error) {
	var c domain.RewardClaim
	err := db.WithContext(ctx).
		Where("user_id = ? AND client_claim_id = ?", userID, clientClaimID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetInFlightClaim returns the user's pending or submitted claim, or
// ErrNotFound. The partial unique index guarantees at most one exists.
func GetInFlightClaim(ctx context.Context, db *gorm.DB, userID string) (*domain.RewardClaim, error) {
	var c domain.RewardClaim
	err := db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []domain.ClaimStatus{domain.ClaimPending, domain.ClaimSubmitted}).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountClaims returns the number of claims owned by userID.
func CountClaims(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.RewardClaim{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListClaimsPage returns a page of claims for userID, newest first.
func ListClaimsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.RewardClaim, error) {
	var out []domain.RewardClaim
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SumLockedPoints returns the points already spoken for by this user's
// pending, submitted, and confirmed claims. These are excluded from quotes.
func SumLockedPoints(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total *int64
	err := db.WithContext(ctx).
		Model(&domain.RewardClaim{}).
		Select("SUM(points_claimed)").
		Where("user_id = ? AND status IN ?", userID,
			[]domain.ClaimStatus{domain.ClaimPending, domain.ClaimSubmitted, domain.ClaimConfirmed}).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// MarkClaimSubmitted persists the signed transaction and advances
// pending → submitted. This runs before broadcast so the raw payload
// survives a crash between signing and sending. applied=false means the
// claim was no longer pending.
func MarkClaimSubmitted(ctx context.Context, db *gorm.DB, id, txHash, rawTx string) (applied bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.RewardClaim{}).
		Where("id = ? AND status = ?", id, domain.ClaimPending).
		Updates(map[string]any{
			"status":     domain.ClaimSubmitted,
			"tx_hash":    txHash,
			"raw_tx":     rawTx,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, ErrDuplicate
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkClaimConfirmed advances submitted → confirmed after a successful
// on-chain receipt. applied=false means the claim was not submitted.
func MarkClaimConfirmed(ctx context.Context, db *gorm.DB, id string) (applied bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.RewardClaim{}).
		Where("id = ? AND status = ?", id, domain.ClaimSubmitted).
		Updates(map[string]any{
			"status":     domain.ClaimConfirmed,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkClaimFailed finalizes an in-flight claim as failed with a reason.
// applied=false means the claim had already reached a terminal status.
func MarkClaimFailed(ctx context.Context, db *gorm.DB, id, reason string) (applied bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.RewardClaim{}).
		Where("id = ? AND status IN ?", id,
			[]domain.ClaimStatus{domain.ClaimPending, domain.ClaimSubmitted}).
		Updates(map[string]any{
			"status":         domain.ClaimFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
