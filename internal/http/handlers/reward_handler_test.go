package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rebottle/go-recycle-backend/internal/domain"
	"github.com/rebottle/go-recycle-backend/internal/services"
)

// stubRewardService scripts the RewardService interface per test.
type stubRewardService struct {
	quoteFn   func(ctx context.Context, userID string) (*services.Quote, error)
	claimFn   func(ctx context.Context, userID, clientID, wallet string) (*domain.RewardClaim, error)
	refreshFn func(ctx context.Context, userID, id string) (*domain.RewardClaim, error)
	getFn     func(ctx context.Context, userID, id string) (*domain.RewardClaim, error)
	listFn    func(ctx context.Context, userID string, page, pageSize int) ([]domain.RewardClaim, int64, error)
}

func (s *stubRewardService) QuoteFor(ctx context.Context, userID string) (*services.Quote, error) {
	return s.quoteFn(ctx, userID)
}

func (s *stubRewardService) Claim(ctx context.Context, userID, clientID, wallet string) (*domain.RewardClaim, error) {
	return s.claimFn(ctx, userID, clientID, wallet)
}

func (s *stubRewardService) Refresh(ctx context.Context, userID, id string) (*domain.RewardClaim, error) {
	return s.refreshFn(ctx, userID, id)
}

func (s *stubRewardService) Get(ctx context.Context, userID, id string) (*domain.RewardClaim, error) {
	return s.getFn(ctx, userID, id)
}

func (s *stubRewardService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.RewardClaim, int64, error) {
	return s.listFn(ctx, userID, page, pageSize)
}

func newRewardRouter(svc RewardService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(nil, svc)
	r := gin.New()
	r.GET("/rewards/quote", h.QuoteRewards)
	r.POST("/rewards/claim", h.CreateClaim)
	r.GET("/rewards/claims", h.ListClaims)
	r.GET("/rewards/claims/:id", h.GetClaim)
	return r
}

func TestQuoteRewards_OK(t *testing.T) {
	r := newRewardRouter(&stubRewardService{
		quoteFn: func(_ context.Context, userID string) (*services.Quote, error) {
			if userID != "user123" {
				t.Fatalf("userID = %s", userID)
			}
			return &services.Quote{
				TotalPoints:     15,
				AvailablePoints: 15,
				PointsPerB3TR:   10,
				B3TRAmountWei:   "1500000000000000000",
			}, nil
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rewards/quote", nil)
	req.Header.Set("X-User-ID", "user123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var q services.Quote
	if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
		t.Fatalf("json: %v", err)
	}
	if q.B3TRAmountWei != "1500000000000000000" {
		t.Fatalf("amount = %s", q.B3TRAmountWei)
	}
}

func TestQuoteRewards_Unconfigured(t *testing.T) {
	r := newRewardRouter(&stubRewardService{
		quoteFn: func(context.Context, string) (*services.Quote, error) {
			return nil, services.ErrRewardsUnconfigured
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rewards/quote", nil)
	r.ServeHTTP(w, req)

	// An operator who has not activated a rate yet is a service gap, not a
	// client mistake.
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeRewardsUnconfigured {
		t.Fatalf("code=%s", er.Code)
	}
}

func TestCreateClaim_Created(t *testing.T) {
	claim := &domain.RewardClaim{ID: uuid.NewString(), Status: domain.ClaimSubmitted}
	r := newRewardRouter(&stubRewardService{
		claimFn: func(_ context.Context, _ string, clientID, wallet string) (*domain.RewardClaim, error) {
			if clientID != "claim-1" || wallet != "0x7567d83b7b8d80addcb281a71d54fc7b3364ffed" {
				t.Fatalf("claim args = %s/%s", clientID, wallet)
			}
			return claim, nil
		},
	})

	body, _ := json.Marshal(ClaimRequest{
		ClientClaimID: "claim-1",
		WalletAddress: "0x7567d83b7b8d80addcb281a71d54fc7b3364ffed",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rewards/claim", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateClaim_WalletFallsBackToTokenClaim(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(nil, &stubRewardService{
		claimFn: func(_ context.Context, _ string, _ string, wallet string) (*domain.RewardClaim, error) {
			if wallet != "0x7567d83b7b8d80addcb281a71d54fc7b3364ffed" {
				t.Fatalf("wallet = %q, want the token claim", wallet)
			}
			return &domain.RewardClaim{ID: uuid.NewString(), Status: domain.ClaimSubmitted}, nil
		},
	})
	r := gin.New()
	// Simulate the auth middleware having verified a token with a wallet claim.
	r.POST("/rewards/claim", func(c *gin.Context) {
		c.Set("wallet", "0x7567d83b7b8d80addcb281a71d54fc7b3364ffed")
	}, h.CreateClaim)

	body, _ := json.Marshal(ClaimRequest{ClientClaimID: "claim-3"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rewards/claim", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateClaim_InFlightReturnsExisting(t *testing.T) {
	inflight := &domain.RewardClaim{ID: uuid.NewString(), Status: domain.ClaimSubmitted}
	r := newRewardRouter(&stubRewardService{
		claimFn: func(context.Context, string, string, string) (*domain.RewardClaim, error) {
			return inflight, services.ErrClaimInFlight
		},
	})

	body, _ := json.Marshal(ClaimRequest{
		ClientClaimID: "claim-2",
		WalletAddress: "0x7567d83b7b8d80addcb281a71d54fc7b3364ffed",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rewards/claim", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	var got domain.RewardClaim
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.ID != inflight.ID {
		t.Fatalf("body claim = %s, want the in-flight claim %s", got.ID, inflight.ID)
	}
}

func TestCreateClaim_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no points", services.ErrNoClaimablePoints, http.StatusConflict, ErrCodeNoClaimablePoints},
		{"zero amount", services.ErrNoClaimableAmount, http.StatusConflict, ErrCodeNoClaimableAmount},
		{"bad wallet", services.ErrInvalidWallet, http.StatusBadRequest, ErrCodeInvalidWallet},
		{"no rate", services.ErrRewardsUnconfigured, http.StatusServiceUnavailable, ErrCodeRewardsUnconfigured},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRewardRouter(&stubRewardService{
				claimFn: func(context.Context, string, string, string) (*domain.RewardClaim, error) {
					return nil, tc.err
				},
			})
			body, _ := json.Marshal(ClaimRequest{
				ClientClaimID: "claim-x",
				WalletAddress: "0x7567d83b7b8d80addcb281a71d54fc7b3364ffed",
			})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/rewards/claim", bytes.NewReader(body))
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("json: %v", err)
			}
			if er.Code != tc.code {
				t.Fatalf("code=%s want %s", er.Code, tc.code)
			}
		})
	}
}

func TestGetClaim_RefreshesAndReturns(t *testing.T) {
	id := uuid.NewString()
	r := newRewardRouter(&stubRewardService{
		refreshFn: func(_ context.Context, _ string, got string) (*domain.RewardClaim, error) {
			if got != id {
				t.Fatalf("refresh id = %s, want %s", got, id)
			}
			return &domain.RewardClaim{ID: id, Status: domain.ClaimConfirmed}, nil
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rewards/claims/"+id, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got domain.RewardClaim
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Status != domain.ClaimConfirmed {
		t.Fatalf("status=%s", got.Status)
	}
}

func TestGetClaim_NotFound(t *testing.T) {
	r := newRewardRouter(&stubRewardService{
		refreshFn: func(context.Context, string, string) (*domain.RewardClaim, error) {
			return nil, services.ErrClaimNotFound
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rewards/claims/"+uuid.NewString(), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestListClaims_Pagination(t *testing.T) {
	r := newRewardRouter(&stubRewardService{
		listFn: func(_ context.Context, _ string, page, pageSize int) ([]domain.RewardClaim, int64, error) {
			return []domain.RewardClaim{{ID: "c1"}, {ID: "c2"}}, 2, nil
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rewards/claims", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListClaimsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Claims) != 2 || resp.Pagination.Total != 2 || resp.Pagination.HasNext {
		t.Fatalf("unexpected body: %+v", resp)
	}
}
