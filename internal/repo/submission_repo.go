// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Submission
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Concurrency model: every status transition is expressed as a conditional
// update ("set status = X where status = Y") and the dedup invariant rides on
// the partial unique index over (receipt_fingerprint) WHERE status='verified'.
// Callers must branch on the applied/ErrDuplicate results instead of assuming
// their write won.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

// CreateSubmission inserts a new pending_upload Submission row. A violation
// of the (user_id, client_submission_id) unique index returns ErrDuplicate;
// the caller resolves the race by re-reading.
func CreateSubmission(ctx context.Context, db *gorm.DB, sub *domain.Submission) error {
	sub.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetSubmission fetches a submission by ID scoped to its owner, or
// ErrNotFound.
func GetSubmission(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubmissionByClientID fetches a submission by its idempotency key
// (user_id, client_submission_id), or ErrNotFound.
func GetSubmissionByClientID(ctx context.Context, db *gorm.DB, userID, clientSubmissionID string) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).
		Where("user_id = ? AND client_submission_id = ?", userID, clientSubmissionID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubmissions returns the number of submissions owned by userID,
// optionally filtered to one status ("" means all).
func CountSubmissions(ctx context.Context, db *gorm.DB, userID string, status domain.SubmissionStatus) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Submission{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListSubmissionsPage returns a page of submissions for userID, newest
// first, optionally filtered to one status ("" means all).
func ListSubmissionsPage(ctx context.Context, db *gorm.DB, userID string, status domain.SubmissionStatus, offset, limit int) ([]domain.Submission, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Submission
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// TransitionSubmission conditionally moves a submission from one status to
// another. It reports applied=false (with no error) when the row was not in
// the expected status, which is how concurrent callers discover they lost
// the race.
func TransitionSubmission(ctx context.Context, db *gorm.DB, id string, from, to domain.SubmissionStatus) (applied bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SubmissionOutcome carries the terminal fields written when a verifying
// submission is finalized.
type SubmissionOutcome struct {
	Status         domain.SubmissionStatus
	RawExtraction  string
	ReceiptTimeRaw string
	IsAvailable    bool
	TimeThreshold  bool
	Drinks         domain.DrinkList
	PointsTotal    int
	Fingerprint    *string
	RejectionCode  *string
	DuplicateOfID  *string
}

// FinalizeSubmission writes a terminal outcome onto a submission currently
// in verifying. When the outcome carries a fingerprint and a different
// submission already holds the verified slot for it, the partial unique
// index rejects the write and ErrDuplicate is returned; the caller then
// re-finalizes as a duplicate rejection. applied=false without error means
// the row was no longer in verifying (a concurrent finalize won).
func FinalizeSubmission(ctx context.Context, db *gorm.DB, id string, out SubmissionOutcome) (applied bool, err error) {
	res := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("id = ? AND status = ?", id, domain.SubmissionVerifying).
		Updates(map[string]any{
			"status":              out.Status,
			"raw_extraction":      out.RawExtraction,
			"receipt_time_raw":    out.ReceiptTimeRaw,
			"is_available":        out.IsAvailable,
			"time_threshold":      out.TimeThreshold,
			"drinks":              out.Drinks,
			"points_total":        out.PointsTotal,
			"receipt_fingerprint": out.Fingerprint,
			"rejection_code":      out.RejectionCode,
			"duplicate_of_id":     out.DuplicateOfID,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, ErrDuplicate
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindVerifiedByFingerprint returns the oldest verified submission holding
// the given fingerprint, or ErrNotFound. Used to point a duplicate rejection
// at the submission that owns the physical receipt.
func FindVerifiedByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).
		Where("receipt_fingerprint = ? AND status = ?", fingerprint, domain.SubmissionVerified).
		Order("created_at asc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SumVerifiedPoints returns the total points across a user's verified
// submissions.
func SumVerifiedPoints(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total *int64
	err := db.WithContext(ctx).
		Model(&domain.Submission{}).
		Select("SUM(points_total)").
		Where("user_id = ? AND status = ?", userID, domain.SubmissionVerified).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
