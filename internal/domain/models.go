// Package domain defines the persistence models for receipt submissions,
// conversion rates, and reward claims. These types are mapped with GORM and
// form the core data layer of the recycling-rewards backend.
package domain

import (
	"time"
)

// SubmissionStatus enumerates the lifecycle states of a receipt submission.
//
// Transitions: pending_upload → uploaded → verifying → one of
// {verified, not_claimable, rejected}. The last three are terminal.
type SubmissionStatus string

const (
	SubmissionPendingUpload SubmissionStatus = "pending_upload"
	SubmissionUploaded      SubmissionStatus = "uploaded"
	SubmissionVerifying     SubmissionStatus = "verifying"
	SubmissionVerified      SubmissionStatus = "verified"
	SubmissionNotClaimable  SubmissionStatus = "not_claimable"
	SubmissionRejected      SubmissionStatus = "rejected"
)

// Terminal reports whether the status can never change again.
func (s SubmissionStatus) Terminal() bool {
	switch s {
	case SubmissionVerified, SubmissionNotClaimable, SubmissionRejected:
		return true
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPendingUpload, SubmissionUploaded, SubmissionVerifying,
		SubmissionVerified, SubmissionNotClaimable, SubmissionRejected:
		return true
	}
	return false
}

// Rejection codes recorded on rejected submissions.
const (
	RejectionDuplicateReceipt  = "duplicate_receipt"
	RejectionNotAcceptable     = "not_acceptable"
	RejectionExtractionInvalid = "extraction_invalid"
	RejectionVerifyFailed      = "verify_failed"
)

// Submission represents one receipt photo submitted by a user.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID + ClientSubmissionID: the client-chosen id is the init
//     idempotency key; the pair is unique.
//   - Bucket/ObjectKey/ContentType: object-storage locator of the photo.
//   - RawExtraction: extraction-service response as received (JSON text),
//     kept for audit; normalized fields below are what the pipeline acts on.
//   - ReceiptTimeRaw / IsAvailable / TimeThreshold / Drinks: normalized
//     extraction output.
//   - PointsTotal: score assigned by the scoring engine (>= 0).
//   - ReceiptFingerprint: content hash used for duplicate detection. A
//     partial unique index (see repo.Migrate) allows at most one *verified*
//     submission per fingerprint, globally across users.
//   - RejectionCode / DuplicateOfID: populated on rejected submissions.
//
// Rejected submissions keep their row; only the backing image is purged.
type Submission struct {
	ID                 string           `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID             string           `json:"user_id"              gorm:"type:varchar(64);not null;uniqueIndex:ux_submission_user_client,priority:1"`
	ClientSubmissionID string           `json:"client_submission_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_submission_user_client,priority:2"`
	Status             SubmissionStatus `json:"status"               gorm:"type:varchar(16);not null;index;check:status IN ('pending_upload','uploaded','verifying','verified','not_claimable','rejected')"`

	Bucket      string `json:"bucket"       gorm:"type:varchar(128);not null"`
	ObjectKey   string `json:"object_key"   gorm:"type:varchar(255);not null"`
	ContentType string `json:"content_type" gorm:"type:varchar(64);not null"`

	RawExtraction  string    `json:"-"                gorm:"type:text"`
	ReceiptTimeRaw string    `json:"receipt_time_raw" gorm:"type:varchar(64)"`
	IsAvailable    bool      `json:"is_available"`
	TimeThreshold  bool      `json:"time_threshold"`
	Drinks         DrinkList `json:"drinks"           gorm:"type:text"`

	PointsTotal        int     `json:"points_total"                  gorm:"not null;default:0;check:points_total >= 0"`
	ReceiptFingerprint *string `json:"receipt_fingerprint,omitempty" gorm:"type:char(64)"`
	RejectionCode      *string `json:"rejection_code,omitempty"      gorm:"type:varchar(32)"`
	DuplicateOfID      *string `json:"duplicate_of,omitempty"        gorm:"type:char(36)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }

// RewardConversionRate is the points-to-token exchange rate. Rates are
// append-only: changing the rate means deactivating the current row and
// inserting a new one, never mutating points_per_b3tr in place, because
// claims snapshot the value they were priced at.
//
// A partial unique index (repo.Migrate) keeps at most one row active.
type RewardConversionRate struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	PointsPerB3TR int64     `json:"points_per_b3tr" gorm:"column:points_per_b3tr;not null;check:points_per_b3tr > 0"`
	Active        bool      `json:"active"          gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for RewardConversionRate.
func (RewardConversionRate) TableName() string { return "reward_conversion_rates" }

// ClaimStatus enumerates reward claim states. pending and submitted are the
// "in-flight" states; confirmed and failed are terminal and never reopened.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimConfirmed ClaimStatus = "confirmed"
	ClaimFailed    ClaimStatus = "failed"
)

// InFlight reports whether a claim in this status locks its points and
// blocks new claims for the same user.
func (s ClaimStatus) InFlight() bool {
	return s == ClaimPending || s == ClaimSubmitted
}

// RewardClaim is one request to convert available points into B3TR via a
// single sponsored on-chain distribution.
//
// Fields:
//   - UserID + ClientClaimID: the client-chosen id is the claim idempotency
//     key; the pair is unique.
//   - WalletAddress: receiver address, stored lowercase.
//   - ConversionRateID / PointsPerB3TRSnapshot: rate the claim was priced at.
//   - PointsClaimed: points locked by this claim (> 0).
//   - B3TRAmountWei: 18-decimal fixed-point token amount as a decimal string
//     (arbitrary precision; never floats).
//   - TxHash / RawTx: set when the signed transaction is persisted, before
//     broadcast, so the payload survives a crash and can be resubmitted.
//
// A partial unique index (repo.Migrate) allows at most one in-flight claim
// per user.
type RewardClaim struct {
	ID            string      `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID        string      `json:"user_id"         gorm:"type:varchar(64);not null;uniqueIndex:ux_claim_user_client,priority:1"`
	ClientClaimID string      `json:"client_claim_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_claim_user_client,priority:2"`
	Status        ClaimStatus `json:"status"          gorm:"type:varchar(16);not null;index;check:status IN ('pending','submitted','confirmed','failed')"`

	WalletAddress         string `json:"wallet_address"  gorm:"type:varchar(42);not null"`
	ConversionRateID      string `json:"conversion_rate_id" gorm:"type:char(36);not null"`
	PointsPerB3TRSnapshot int64  `json:"points_per_b3tr" gorm:"column:points_per_b3tr_snapshot;not null"`
	PointsClaimed         int    `json:"points_claimed"  gorm:"not null;check:points_claimed > 0"`
	B3TRAmountWei         string `json:"b3tr_amount_wei" gorm:"column:b3tr_amount_wei;type:varchar(78);not null"`

	TxHash        *string `json:"tx_hash,omitempty"        gorm:"type:char(66);uniqueIndex"`
	RawTx         *string `json:"-"                        gorm:"type:text"`
	FailureReason *string `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for RewardClaim.
func (RewardClaim) TableName() string { return "reward_claims" }
