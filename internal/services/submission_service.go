// Package services – SubmissionService
//
// This file implements the receipt submission state machine:
// pending_upload → uploaded → verifying → {verified | not_claimable |
// rejected}. All transitions go through conditional updates in the repo
// layer so any number of concurrent callers converge on one outcome, and
// the duplicate-receipt invariant rides on the partial unique fingerprint
// index rather than application-level locking.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rebottle/go-recycle-backend/internal/domain"
	"github.com/rebottle/go-recycle-backend/internal/extraction"
	"github.com/rebottle/go-recycle-backend/internal/observability"
	"github.com/rebottle/go-recycle-backend/internal/receipt"
	"github.com/rebottle/go-recycle-backend/internal/repo"
	"github.com/rebottle/go-recycle-backend/internal/storage"
	"github.com/rebottle/go-recycle-backend/internal/utils"
)

// Pagination bounds shared by the list endpoints.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ObjectStore is the object-storage contract required by the state machine.
// Implemented by storage.S3Store; tests inject a fake.
type ObjectStore interface {
	// Bucket returns the bucket new submissions are keyed under.
	Bucket() string

	// PresignUpload issues a time-limited PUT target for the client.
	PresignUpload(ctx context.Context, key, contentType string) (*storage.UploadTarget, error)

	// PresignDownload issues a time-limited GET URL for the extractor.
	PresignDownload(ctx context.Context, key string) (string, error)

	// Exists probes the object; a missing object is (false, nil).
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object; deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error
}

// Extractor analyzes a receipt image reachable at a URL.
type Extractor interface {
	Extract(ctx context.Context, imageURL, userRef string) (*extraction.Result, error)
}

// SubmissionService drives the submission lifecycle. It owns no state
// beyond its injected collaborators; every request is independent.
type SubmissionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the object-storage collaborator.
	Store ObjectStore
	// Extractor is the receipt-analysis collaborator.
	Extractor Extractor

	// AllowedContentTypes is the upload allow-list (lowercase).
	AllowedContentTypes []string
	// ExtractTimeout bounds one extraction call.
	ExtractTimeout time.Duration
}

// NewSubmissionService constructs a SubmissionService with defaults.
func NewSubmissionService(db *gorm.DB, store ObjectStore, ex Extractor) *SubmissionService {
	return &SubmissionService{
		DB:                  db,
		Store:               store,
		Extractor:           ex,
		AllowedContentTypes: []string{"image/jpeg", "image/png", "image/webp"},
		ExtractTimeout:      30 * time.Second,
	}
}

// Init returns the submission for (userID, clientSubmissionID), creating a
// pending_upload row when none exists. The client-chosen id is the
// idempotency key: replays return the same submission, with a fresh upload
// target only while it is still waiting for its upload.
func (s *SubmissionService) Init(ctx context.Context, userID, clientSubmissionID, contentType string) (*domain.Submission, *storage.UploadTarget, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !s.contentTypeAllowed(contentType) {
		return nil, nil, ErrUnsupportedContentType
	}

	existing, err := repo.GetSubmissionByClientID(ctx, s.DB, userID, clientSubmissionID)
	if err == nil {
		return s.withUploadTarget(ctx, existing)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, err
	}

	id := uuid.NewString()
	sub := &domain.Submission{
		ID:                 id,
		UserID:             userID,
		ClientSubmissionID: clientSubmissionID,
		Status:             domain.SubmissionPendingUpload,
		Bucket:             s.Store.Bucket(),
		ObjectKey:          objectKey(userID, id, contentType),
		ContentType:        contentType,
	}
	if err := repo.CreateSubmission(ctx, s.DB, sub); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost a race with a concurrent init for the same key;
			// the winner's row is authoritative.
			winner, rerr := repo.GetSubmissionByClientID(ctx, s.DB, userID, clientSubmissionID)
			if rerr != nil {
				return nil, nil, rerr
			}
			return s.withUploadTarget(ctx, winner)
		}
		return nil, nil, err
	}
	return s.withUploadTarget(ctx, sub)
}

// withUploadTarget attaches a presigned PUT while the submission still
// needs its upload; later states return the row alone.
func (s *SubmissionService) withUploadTarget(ctx context.Context, sub *domain.Submission) (*domain.Submission, *storage.UploadTarget, error) {
	if sub.Status != domain.SubmissionPendingUpload {
		return sub, nil, nil
	}
	target, err := s.Store.PresignUpload(ctx, sub.ObjectKey, sub.ContentType)
	if err != nil {
		return nil, nil, err
	}
	return sub, target, nil
}

// Complete confirms the upload: it probes the object and conditionally
// advances pending_upload → uploaded. Replays and concurrent calls settle
// on the stored row; a missing object is ErrUploadIncomplete (retryable).
func (s *SubmissionService) Complete(ctx context.Context, userID, id string) (*domain.Submission, error) {
	sub, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubmissionPendingUpload {
		return sub, nil
	}

	exists, err := s.Store.Exists(ctx, sub.ObjectKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUploadIncomplete
	}

	if _, err := repo.TransitionSubmission(ctx, s.DB, sub.ID, domain.SubmissionPendingUpload, domain.SubmissionUploaded); err != nil {
		return nil, err
	}
	// Re-read regardless of whether this call or a concurrent one applied
	// the transition.
	return s.get(ctx, userID, id)
}

// Verify runs the extraction/scoring/dedup pipeline. Terminal submissions
// return unchanged; concurrent verifies are safe because only the caller
// that wins the uploaded → verifying transition runs the pipeline, and
// everyone else observes whatever state the winner leaves behind.
func (s *SubmissionService) Verify(ctx context.Context, userID, id string) (*domain.Submission, error) {
	sub, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status.Terminal() {
		return sub, nil
	}
	if sub.Status == domain.SubmissionPendingUpload {
		return nil, ErrUploadIncomplete
	}

	applied, err := repo.TransitionSubmission(ctx, s.DB, sub.ID, domain.SubmissionUploaded, domain.SubmissionVerifying)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another verify holds (or held) the row; report its view.
		return s.get(ctx, userID, id)
	}

	if err := s.runVerification(ctx, sub); err != nil {
		return nil, err
	}
	return s.get(ctx, userID, id)
}

// runVerification executes the claimed pipeline. Every exit path finalizes
// the row: nothing may remain stuck in verifying. The only error returned
// is ErrUploadIncomplete (after reverting the claim); infrastructure
// failures finalize the submission as rejected instead of propagating.
func (s *SubmissionService) runVerification(ctx context.Context, sub *domain.Submission) error {
	exists, err := s.Store.Exists(ctx, sub.ObjectKey)
	if err == nil && !exists {
		// The object disappeared between complete and verify: hand the
		// row back to the upload phase.
		if _, rerr := repo.TransitionSubmission(ctx, s.DB, sub.ID, domain.SubmissionVerifying, domain.SubmissionPendingUpload); rerr != nil {
			return rerr
		}
		return ErrUploadIncomplete
	}
	if err != nil {
		s.finalizeError(ctx, sub, fmt.Errorf("storage probe: %w", err))
		return nil
	}

	res, err := s.extract(ctx, sub)
	if err != nil {
		code := domain.RejectionVerifyFailed
		if errors.Is(err, extraction.ErrMalformedPayload) {
			code = domain.RejectionExtractionInvalid
		}
		log.Warn().Err(err).Str("submission_id", sub.ID).Msg("extraction failed")
		s.finalizeRejected(ctx, sub, repo.SubmissionOutcome{
			Status:        domain.SubmissionRejected,
			RejectionCode: &code,
		})
		return nil
	}

	// The extractor echoes a caller-supplied correlation id; it is never
	// trusted for authorization, only reconciled against the session.
	if res.UserRef != "" && res.UserRef != sub.UserID {
		log.Warn().
			Str("submission_id", sub.ID).
			Str("extraction_user_ref", res.UserRef).
			Msg("extraction user reference does not match submitter")
	}

	acceptable := res.Acceptable()
	points := receipt.Score(res.Drinks)

	out := repo.SubmissionOutcome{
		RawExtraction:  res.Raw,
		ReceiptTimeRaw: res.ReceiptTimeRaw,
		IsAvailable:    strings.EqualFold(strings.TrimSpace(res.IsAvailable), "true"),
		TimeThreshold:  strings.EqualFold(strings.TrimSpace(res.TimeThreshold), "true"),
		Drinks:         res.Drinks,
		PointsTotal:    points,
	}

	switch {
	case acceptable && points > 0:
		out.Status = domain.SubmissionVerified
	case acceptable:
		out.Status = domain.SubmissionNotClaimable
		out.PointsTotal = 0
	default:
		code := domain.RejectionNotAcceptable
		out.Status = domain.SubmissionRejected
		out.PointsTotal = 0
		out.RejectionCode = &code
		s.finalizeRejected(ctx, sub, out)
		return nil
	}

	if out.Status != domain.SubmissionVerified {
		if _, err := repo.FinalizeSubmission(ctx, s.DB, sub.ID, out); err != nil {
			s.finalizeError(ctx, sub, err)
			return nil
		}
		observability.RecordSubmissionOutcome(string(out.Status), "", 0)
		return nil
	}

	fp, ok := receipt.Fingerprint(res.ReceiptTimeRaw, res.Drinks)
	if !ok {
		// No usable timestamp: the receipt cannot occupy the global
		// dedup slot, but it still earns its points.
		if _, err := repo.FinalizeSubmission(ctx, s.DB, sub.ID, out); err != nil {
			s.finalizeError(ctx, sub, err)
			return nil
		}
		observability.RecordSubmissionOutcome(string(out.Status), "", out.PointsTotal)
		return nil
	}
	out.Fingerprint = &fp

	// Ahead-of-write check gives a cheap early answer; the partial unique
	// index below is the authoritative one and wins under races.
	if winner, err := repo.FindVerifiedByFingerprint(ctx, s.DB, fp); err == nil {
		s.rejectDuplicate(ctx, sub, out, winner.ID)
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		s.finalizeError(ctx, sub, err)
		return nil
	}

	if _, err := repo.FinalizeSubmission(ctx, s.DB, sub.ID, out); err == nil {
		observability.RecordSubmissionOutcome(string(out.Status), "", out.PointsTotal)
	} else {
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent writer claimed the fingerprint after our
			// pre-check: they own the physical receipt.
			winnerID := ""
			if winner, werr := repo.FindVerifiedByFingerprint(ctx, s.DB, fp); werr == nil {
				winnerID = winner.ID
			}
			s.rejectDuplicate(ctx, sub, out, winnerID)
			return nil
		}
		s.finalizeError(ctx, sub, err)
	}
	return nil
}

// rejectDuplicate re-finalizes the current submission as a duplicate of an
// already-verified one.
func (s *SubmissionService) rejectDuplicate(ctx context.Context, sub *domain.Submission, out repo.SubmissionOutcome, winnerID string) {
	code := domain.RejectionDuplicateReceipt
	out.Status = domain.SubmissionRejected
	out.PointsTotal = 0
	out.RejectionCode = &code
	if winnerID != "" {
		out.DuplicateOfID = &winnerID
	}
	s.finalizeRejected(ctx, sub, out)
}

// finalizeRejected writes a rejected outcome and best-effort purges the
// backing image. Purge failures are logged, never fatal: a later retry
// treats the already-missing object as deleted.
func (s *SubmissionService) finalizeRejected(ctx context.Context, sub *domain.Submission, out repo.SubmissionOutcome) {
	if _, err := repo.FinalizeSubmission(ctx, s.DB, sub.ID, out); err != nil {
		log.Error().Err(err).Str("submission_id", sub.ID).Msg("finalize rejected submission")
		return
	}
	code := ""
	if out.RejectionCode != nil {
		code = *out.RejectionCode
	}
	observability.RecordSubmissionOutcome(string(out.Status), code, 0)
	if err := s.Store.Delete(ctx, sub.ObjectKey); err != nil {
		log.Warn().Err(err).
			Str("submission_id", sub.ID).
			Str("object_key", sub.ObjectKey).
			Msg("purge rejected receipt object")
	}
}

// finalizeError converts an unexpected pipeline failure into a terminal
// rejection so the row never sticks in verifying.
func (s *SubmissionService) finalizeError(ctx context.Context, sub *domain.Submission, cause error) {
	log.Error().Err(cause).Str("submission_id", sub.ID).Msg("verification failed")
	code := domain.RejectionVerifyFailed
	s.finalizeRejected(ctx, sub, repo.SubmissionOutcome{
		Status:        domain.SubmissionRejected,
		RejectionCode: &code,
	})
}

// extract obtains a read URL and calls the extraction collaborator under
// the configured timeout.
func (s *SubmissionService) extract(ctx context.Context, sub *domain.Submission) (*extraction.Result, error) {
	url, err := s.Store.PresignDownload(ctx, sub.ObjectKey)
	if err != nil {
		return nil, err
	}
	timeout := s.ExtractTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Extractor.Extract(cctx, url, sub.UserID)
}

// Get fetches one submission scoped to its owner.
func (s *SubmissionService) Get(ctx context.Context, userID, id string) (*domain.Submission, error) {
	return s.get(ctx, userID, id)
}

// ListPage returns a page of the user's submissions, optionally filtered by
// status, with the total for pagination metadata.
func (s *SubmissionService) ListPage(ctx context.Context, userID string, status domain.SubmissionStatus, page, pageSize int) ([]domain.Submission, int64, error) {
	offset, limit := utils.PageBounds(page, pageSize, defaultPageSize, maxPageSize)
	total, err := repo.CountSubmissions(ctx, s.DB, userID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Submission{}, 0, nil
	}
	items, err := repo.ListSubmissionsPage(ctx, s.DB, userID, status, offset, limit)
	return items, total, err
}

func (s *SubmissionService) get(ctx context.Context, userID, id string) (*domain.Submission, error) {
	sub, err := repo.GetSubmission(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) contentTypeAllowed(ct string) bool {
	for _, allowed := range s.AllowedContentTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

// objectKey derives the storage key for a submission.
func objectKey(userID, id, contentType string) string {
	ext := ".bin"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("receipts/%s/%s%s", userID, id, ext)
}
