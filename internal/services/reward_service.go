// Package services – RewardService
//
// This file implements the points-to-token claim orchestrator. A claim is
// idempotent by (user, client_claim_id), at most one claim per user may be
// in flight at a time, and the signed transaction is persisted before it is
// broadcast so a crash between the two never loses a spendable signature.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rebottle/go-recycle-backend/internal/chain"
	"github.com/rebottle/go-recycle-backend/internal/domain"
	"github.com/rebottle/go-recycle-backend/internal/observability"
	"github.com/rebottle/go-recycle-backend/internal/repo"
	"github.com/rebottle/go-recycle-backend/internal/token"
	"github.com/rebottle/go-recycle-backend/internal/utils"
)

// ChainClient is the blockchain contract required by the orchestrator.
// Implemented by chain.HTTPClient; tests inject chain.Mock or a fake.
type ChainClient interface {
	// SignDistribution builds and fully co-signs a reward distribution
	// transaction, returning (txID, rawTx) without broadcasting it.
	SignDistribution(ctx context.Context, receiver string, amountWei *big.Int, proof string) (txID, rawTx string, err error)

	// Broadcast submits a previously signed raw transaction.
	Broadcast(ctx context.Context, rawTx string) error

	// GetReceipt polls for a transaction receipt; nil means not yet mined.
	GetReceipt(ctx context.Context, txID string) (*chain.Receipt, error)
}

// Quote is a snapshot of a user's claimable balance at the active rate.
type Quote struct {
	TotalPoints     int64  `json:"total_points"`
	LockedPoints    int64  `json:"locked_points"`
	AvailablePoints int64  `json:"available_points"`
	PointsPerB3TR   int64  `json:"points_per_b3tr"`
	B3TRAmountWei   string `json:"b3tr_amount_wei"`
}

// RewardService converts verified points into on-chain B3TR distributions.
type RewardService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Chain is the blockchain collaborator.
	Chain ChainClient
}

// NewRewardService constructs a RewardService.
func NewRewardService(db *gorm.DB, cc ChainClient) *RewardService {
	return &RewardService{DB: db, Chain: cc}
}

// QuoteFor computes the user's claimable balance. Points already consumed
// by pending, submitted or confirmed claims stay locked; only failed claims
// release their points.
func (s *RewardService) QuoteFor(ctx context.Context, userID string) (*Quote, error) {
	rate, err := repo.ActiveRate(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRewardsUnconfigured
		}
		return nil, err
	}

	total, err := repo.SumVerifiedPoints(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	locked, err := repo.SumLockedPoints(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	available := total - locked
	if available < 0 {
		available = 0
	}

	amount := big.NewInt(0)
	if available > 0 {
		amount, err = token.PointsToWei(available, rate.PointsPerB3TR)
		if err != nil {
			return nil, err
		}
	}

	return &Quote{
		TotalPoints:     total,
		LockedPoints:    locked,
		AvailablePoints: available,
		PointsPerB3TR:   rate.PointsPerB3TR,
		B3TRAmountWei:   amount.String(),
	}, nil
}

// Claim converts the user's entire available balance into a signed and
// broadcast distribution. The client-chosen id makes the call replayable,
// and the one-in-flight index makes a second concurrent claim lose cleanly.
// A claim that fails signing is returned in its failed state rather than as
// an error so the caller sees a durable record of the attempt.
func (s *RewardService) Claim(ctx context.Context, userID, clientClaimID, wallet string) (*domain.RewardClaim, error) {
	if existing, err := repo.GetClaimByClientID(ctx, s.DB, userID, clientClaimID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if inflight, err := repo.GetInFlightClaim(ctx, s.DB, userID); err == nil {
		return inflight, ErrClaimInFlight
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}

	rate, err := repo.ActiveRate(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRewardsUnconfigured
		}
		return nil, err
	}

	quote, err := s.QuoteFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if quote.AvailablePoints <= 0 {
		return nil, ErrNoClaimablePoints
	}
	amount, err := token.PointsToWei(quote.AvailablePoints, rate.PointsPerB3TR)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, ErrNoClaimableAmount
	}

	claim := &domain.RewardClaim{
		ID:                    uuid.NewString(),
		UserID:                userID,
		ClientClaimID:         clientClaimID,
		Status:                domain.ClaimPending,
		WalletAddress:         wallet,
		ConversionRateID:      rate.ID,
		PointsPerB3TRSnapshot: rate.PointsPerB3TR,
		PointsClaimed:         int(quote.AvailablePoints),
		B3TRAmountWei:         amount.String(),
	}
	if err := repo.CreateClaim(ctx, s.DB, claim); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Either a replay of the same client id or a concurrent
			// claim won the in-flight slot; the stored row decides.
			if existing, rerr := repo.GetClaimByClientID(ctx, s.DB, userID, clientClaimID); rerr == nil {
				return existing, nil
			}
			if inflight, rerr := repo.GetInFlightClaim(ctx, s.DB, userID); rerr == nil {
				return inflight, ErrClaimInFlight
			}
			return nil, err
		}
		return nil, err
	}

	txID, rawTx, err := s.Chain.SignDistribution(ctx, wallet, amount, claimProof(claim.ID))
	if err != nil {
		log.Error().Err(err).Str("claim_id", claim.ID).Msg("sign distribution")
		if _, ferr := repo.MarkClaimFailed(ctx, s.DB, claim.ID, "sign_failed"); ferr != nil {
			log.Error().Err(ferr).Str("claim_id", claim.ID).Msg("mark claim failed")
		}
		observability.RecordClaimOutcome(string(domain.ClaimFailed))
		return repo.GetClaim(ctx, s.DB, claim.ID, userID)
	}

	// Persist the signed transaction before broadcasting so a crash in
	// between leaves a recoverable submitted claim, never a silent double
	// distribution on retry.
	if _, err := repo.MarkClaimSubmitted(ctx, s.DB, claim.ID, txID, rawTx); err != nil {
		// A tx_hash collision or similar non-transient write failure must
		// not park the claim in pending forever; fail it and release the
		// in-flight slot. If even that write fails the claim stays pending.
		log.Error().Err(err).Str("claim_id", claim.ID).Msg("persist signed tx")
		if _, ferr := repo.MarkClaimFailed(ctx, s.DB, claim.ID, "persist_failed"); ferr != nil {
			log.Error().Err(ferr).Str("claim_id", claim.ID).Msg("mark claim failed")
			return nil, err
		}
		observability.RecordClaimOutcome(string(domain.ClaimFailed))
		return repo.GetClaim(ctx, s.DB, claim.ID, userID)
	}
	observability.RecordClaimOutcome(string(domain.ClaimSubmitted))

	if err := s.Chain.Broadcast(ctx, rawTx); err != nil {
		// The signed tx is durable; confirmation polling or an operator
		// replay of raw_tx completes the distribution.
		log.Warn().Err(err).
			Str("claim_id", claim.ID).
			Str("tx_hash", txID).
			Msg("broadcast failed, claim stays submitted")
	}

	return repo.GetClaim(ctx, s.DB, claim.ID, userID)
}

// Refresh polls the chain for a submitted claim's receipt and advances it
// to confirmed or failed. Claims in any other state return unchanged, and
// polling errors keep the last known state rather than surfacing.
func (s *RewardService) Refresh(ctx context.Context, userID, id string) (*domain.RewardClaim, error) {
	claim, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if claim.Status != domain.ClaimSubmitted || claim.TxHash == nil {
		return claim, nil
	}

	receipt, err := s.Chain.GetReceipt(ctx, *claim.TxHash)
	if err != nil {
		log.Warn().Err(err).Str("claim_id", claim.ID).Msg("poll claim receipt")
		return claim, nil
	}
	if receipt == nil {
		return claim, nil
	}

	if receipt.Reverted {
		if _, err := repo.MarkClaimFailed(ctx, s.DB, claim.ID, "tx_reverted"); err != nil {
			return nil, err
		}
		observability.RecordClaimOutcome(string(domain.ClaimFailed))
	} else {
		if _, err := repo.MarkClaimConfirmed(ctx, s.DB, claim.ID); err != nil {
			return nil, err
		}
		observability.RecordClaimOutcome(string(domain.ClaimConfirmed))
	}
	return s.get(ctx, userID, id)
}

// Get fetches one claim scoped to its owner.
func (s *RewardService) Get(ctx context.Context, userID, id string) (*domain.RewardClaim, error) {
	return s.get(ctx, userID, id)
}

// ListPage returns a page of the user's claims with the total for
// pagination metadata.
func (s *RewardService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.RewardClaim, int64, error) {
	offset, limit := utils.PageBounds(page, pageSize, defaultPageSize, maxPageSize)
	total, err := repo.CountClaims(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.RewardClaim{}, 0, nil
	}
	items, err := repo.ListClaimsPage(ctx, s.DB, userID, offset, limit)
	return items, total, err
}

// SetRate activates a new conversion rate, retiring the previous one.
func (s *RewardService) SetRate(ctx context.Context, pointsPerB3TR int64) (*domain.RewardConversionRate, error) {
	if pointsPerB3TR <= 0 {
		return nil, fmt.Errorf("points per B3TR must be positive, got %d", pointsPerB3TR)
	}
	return repo.SwapActiveRate(ctx, s.DB, pointsPerB3TR)
}

func (s *RewardService) get(ctx context.Context, userID, id string) (*domain.RewardClaim, error) {
	claim, err := repo.GetClaim(ctx, s.DB, id, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return claim, nil
}

// claimProof is the on-chain proof string tying a distribution back to its
// claim record.
func claimProof(claimID string) string {
	return "claim:" + claimID
}
