// Reward HTTP handlers.
//
// This file exposes REST endpoints for points-to-token claims:
//   - GET  /rewards/quote       (claimable balance at the active rate)
//   - POST /rewards/claim       (convert the available balance, idempotent)
//   - GET  /rewards/claims      (list, paginated)
//   - GET  /rewards/claims/{id} (fetch one, refreshing on-chain status)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rebottle/go-recycle-backend/internal/domain"
	"github.com/rebottle/go-recycle-backend/internal/http/middleware"
	"github.com/rebottle/go-recycle-backend/internal/services"
)

//
// DTOs
//

// ClaimRequest is the JSON payload for creating a claim.
type ClaimRequest struct {
	// ClientClaimID is the client-chosen idempotency key (1-128 chars).
	ClientClaimID string `json:"client_claim_id" binding:"required,min=1,max=128" example:"claim-2025-03-01"`
	// WalletAddress is the 0x-prefixed receiver of the B3TR distribution.
	// When omitted, the wallet claim of the bearer token is used.
	WalletAddress string `json:"wallet_address" example:"0x7567d83b7b8d80addcb281a71d54fc7b3364ffed"`
}

// ListClaimsResponse wraps a page of claims and pagination information.
type ListClaimsResponse struct {
	Claims     []domain.RewardClaim `json:"claims"`
	Pagination Pagination           `json:"pagination"`
}

//
// Handlers
//

// QuoteRewards godoc
// @ID          quoteRewards
// @Summary     Quote the claimable balance
// @Description Returns the user's total, locked and available points and the B3TR amount the available points convert to at the active rate.
// @Tags        Rewards
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  services.Quote
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "No active conversion rate"
// @Router      /rewards/quote [get]
func (h *Handlers) QuoteRewards(c *gin.Context) {
	q, err := h.rewardSvc.QuoteFor(c.Request.Context(), userID(c))
	if err != nil {
		h.failReward(c, err)
		return
	}
	ok(c, http.StatusOK, q)
}

// CreateClaim godoc
// @ID          createClaim
// @Summary     Claim the available balance
// @Description Converts all available points into a signed B3TR distribution. Idempotent by client_claim_id; at most one claim per user may be in flight.
// @Tags        Rewards
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.ClaimRequest  true  "Claim payload"
//
// @Success     201  {object}  domain.RewardClaim
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Claim in flight or nothing claimable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "No active conversion rate"
// @Router      /rewards/claim [post]
func (h *Handlers) CreateClaim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	wallet := strings.TrimSpace(req.WalletAddress)
	if wallet == "" {
		wallet = middleware.WalletFrom(c)
	}

	claim, err := h.rewardSvc.Claim(c.Request.Context(), userID(c), strings.TrimSpace(req.ClientClaimID), wallet)
	if err != nil {
		if errors.Is(err, services.ErrClaimInFlight) && claim != nil {
			// The in-flight claim is returned alongside the conflict so
			// clients can resume polling it.
			c.AbortWithStatusJSON(http.StatusConflict, claim)
			return
		}
		h.failReward(c, err)
		return
	}
	ok(c, http.StatusCreated, claim)
}

// GetClaim godoc
// @ID          getClaim
// @Summary     Fetch one claim
// @Description Returns a claim, first polling the chain to advance a submitted claim whose transaction has been mined.
// @Tags        Rewards
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Claim ID (UUID)"        format(uuid)
//
// @Success     200  {object}  domain.RewardClaim
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Claim not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rewards/claims/{id} [get]
func (h *Handlers) GetClaim(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "claim id must be a UUID")
		return
	}

	claim, err := h.rewardSvc.Refresh(c.Request.Context(), userID(c), id)
	if err != nil {
		h.failReward(c, err)
		return
	}
	ok(c, http.StatusOK, claim)
}

// ListClaims godoc
// @ID          listClaims
// @Summary     List claims (paginated)
// @Tags        Rewards
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"             minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"          minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListClaimsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rewards/claims [get]
func (h *Handlers) ListClaims(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.rewardSvc.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListClaimsResponse{
		Claims:     items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// failReward maps reward sentinel errors to HTTP responses.
func (h *Handlers) failReward(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrClaimNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "claim not found")
	case errors.Is(err, services.ErrRewardsUnconfigured):
		// Missing rate is an operator omission, not a client conflict.
		fail(c, http.StatusServiceUnavailable, ErrCodeRewardsUnconfigured, "no active conversion rate configured")
	case errors.Is(err, services.ErrNoClaimablePoints):
		fail(c, http.StatusConflict, ErrCodeNoClaimablePoints, "no points available to claim")
	case errors.Is(err, services.ErrNoClaimableAmount):
		fail(c, http.StatusConflict, ErrCodeNoClaimableAmount, "available points convert to a zero token amount")
	case errors.Is(err, services.ErrClaimInFlight):
		fail(c, http.StatusConflict, ErrCodeClaimInFlight, "a claim is already in flight")
	case errors.Is(err, services.ErrInvalidWallet):
		fail(c, http.StatusBadRequest, ErrCodeInvalidWallet, "wallet address must be a 0x-prefixed 20-byte hex string")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
