// Package services implements the business logic of the receipt-to-reward
// pipeline: the submission state machine and the claim orchestrator.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// Business outcomes (duplicate receipt, not claimable) are represented as
// submission/claim state, never as errors; translation of the errors below
// into HTTP status codes happens at the handler layer.
package services

import "errors"

// Submission-related errors.
var (
	// ErrSubmissionNotFound indicates the submission does not exist or is
	// not accessible to the current user.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrUnsupportedContentType is returned when the declared upload
	// content type is not in the allow-list.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrUploadIncomplete is returned when the backing object is missing
	// from storage. Retryable: the client must (re-)upload and confirm.
	ErrUploadIncomplete = errors.New("upload incomplete")
)

// Reward-related errors.
var (
	// ErrClaimNotFound indicates the claim does not exist or is not
	// accessible to the current user.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrRewardsUnconfigured is returned when no active conversion rate is
	// configured. A deployment problem, not a user error.
	ErrRewardsUnconfigured = errors.New("rewards not configured")

	// ErrNoClaimablePoints is returned when the user has no points left
	// after subtracting locked claims.
	ErrNoClaimablePoints = errors.New("no claimable points")

	// ErrNoClaimableAmount is returned when the available points convert
	// to a zero token amount at the current rate.
	ErrNoClaimableAmount = errors.New("no claimable amount")

	// ErrInvalidWallet is returned for a malformed receiver address.
	ErrInvalidWallet = errors.New("invalid wallet address")

	// ErrClaimInFlight is returned when the user already has an
	// unresolved claim; the claim it accompanies is that one.
	ErrClaimInFlight = errors.New("claim already in flight")
)
