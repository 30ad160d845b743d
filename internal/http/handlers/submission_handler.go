// Receipt submission HTTP handlers.
//
// This file exposes REST endpoints for the submission lifecycle:
//   - POST   /submissions/init           (create or replay, returns upload target)
//   - POST   /submissions/{id}/complete  (confirm upload)
//   - POST   /submissions/{id}/verify    (run verification)
//   - GET    /submissions                (list, paginated, optional status filter)
//   - GET    /submissions/{id}           (fetch one)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate sentinel errors into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rebottle/go-recycle-backend/internal/domain"
	"github.com/rebottle/go-recycle-backend/internal/services"
	"github.com/rebottle/go-recycle-backend/internal/storage"
	"github.com/rebottle/go-recycle-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SubmissionService defines the submission lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SubmissionService interface {
	// Init creates (or replays) a submission and issues an upload target
	// while the image is still pending.
	Init(ctx context.Context, userID, clientSubmissionID, contentType string) (*domain.Submission, *storage.UploadTarget, error)
	// Complete confirms the upload and advances to uploaded.
	Complete(ctx context.Context, userID, id string) (*domain.Submission, error)
	// Verify runs extraction, scoring and dedup to a terminal state.
	Verify(ctx context.Context, userID, id string) (*domain.Submission, error)
	// Get returns one submission owned by userID.
	Get(ctx context.Context, userID, id string) (*domain.Submission, error)
	// ListPage returns a page of the user's submissions and the total count.
	ListPage(ctx context.Context, userID string, status domain.SubmissionStatus, page, pageSize int) ([]domain.Submission, int64, error)
}

// RewardService defines the claim operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RewardService interface {
	// QuoteFor computes the user's claimable balance at the active rate.
	QuoteFor(ctx context.Context, userID string) (*services.Quote, error)
	// Claim converts the available balance into a signed distribution.
	Claim(ctx context.Context, userID, clientClaimID, wallet string) (*domain.RewardClaim, error)
	// Refresh polls the chain and advances a submitted claim.
	Refresh(ctx context.Context, userID, id string) (*domain.RewardClaim, error)
	// Get returns one claim owned by userID.
	Get(ctx context.Context, userID, id string) (*domain.RewardClaim, error)
	// ListPage returns a page of the user's claims and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.RewardClaim, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for submissions and rewards. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	subSvc    SubmissionService
	rewardSvc RewardService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(subSvc SubmissionService, rewardSvc RewardService) *Handlers {
	return &Handlers{subSvc: subSvc, rewardSvc: rewardSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// InitSubmissionRequest is the JSON payload for starting a submission.
type InitSubmissionRequest struct {
	// ClientSubmissionID is the client-chosen idempotency key (1-128 chars).
	ClientSubmissionID string `json:"client_submission_id" binding:"required,min=1,max=128" example:"a2f4c1d8-receipt-1"`
	// ContentType declares the image type to be uploaded.
	ContentType string `json:"content_type" binding:"required" example:"image/jpeg"`
}

// InitSubmissionResponse pairs the submission with its upload target. The
// target is present only while the submission still awaits its upload.
type InitSubmissionResponse struct {
	Submission *domain.Submission    `json:"submission"`
	Upload     *storage.UploadTarget `json:"upload,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSubmissionsResponse wraps a page of submissions and pagination
// information.
type ListSubmissionsResponse struct {
	Submissions []domain.Submission `json:"submissions"`
	Pagination  Pagination          `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// paginationFor computes the metadata block for a page of total rows.
func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// InitSubmission godoc
// @ID          initSubmission
// @Summary     Start a receipt submission
// @Description Creates a submission (or replays one by client_submission_id) and returns a presigned upload target while the image is pending.
// @Tags        Submissions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.InitSubmissionRequest  true  "Init payload"
//
// @Success     201  {object}  handlers.InitSubmissionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     415  {object}  handlers.ErrorResponse  "Unsupported content type"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions/init [post]
func (h *Handlers) InitSubmission(c *gin.Context) {
	var req InitSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sub, upload, err := h.subSvc.Init(c.Request.Context(), userID(c), strings.TrimSpace(req.ClientSubmissionID), req.ContentType)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedContentType) {
			fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedContentType, "content type not allowed for receipt uploads")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, InitSubmissionResponse{Submission: sub, Upload: upload})
}

// CompleteSubmission godoc
// @ID          completeSubmission
// @Summary     Confirm a receipt upload
// @Description Probes object storage and advances the submission to uploaded. Replayable.
// @Tags        Submissions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Submission ID (UUID)"   format(uuid)
//
// @Success     200  {object}  domain.Submission
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Submission not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Upload incomplete"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions/{id}/complete [post]
func (h *Handlers) CompleteSubmission(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}

	sub, err := h.subSvc.Complete(c.Request.Context(), userID(c), id)
	if err != nil {
		h.failSubmission(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// VerifySubmission godoc
// @ID          verifySubmission
// @Summary     Verify an uploaded receipt
// @Description Runs extraction, scoring and duplicate detection, driving the submission to a terminal state. Replayable.
// @Tags        Submissions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Submission ID (UUID)"   format(uuid)
//
// @Success     200  {object}  domain.Submission
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Submission not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Upload incomplete"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions/{id}/verify [post]
func (h *Handlers) VerifySubmission(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}

	sub, err := h.subSvc.Verify(c.Request.Context(), userID(c), id)
	if err != nil {
		h.failSubmission(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// GetSubmission godoc
// @ID          getSubmission
// @Summary     Fetch one submission
// @Tags        Submissions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Submission ID (UUID)"   format(uuid)
//
// @Success     200  {object}  domain.Submission
// @Failure     404  {object}  handlers.ErrorResponse  "Submission not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions/{id} [get]
func (h *Handlers) GetSubmission(c *gin.Context) {
	sub, err := h.subSvc.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.failSubmission(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// ListSubmissions godoc
// @ID          listSubmissions
// @Summary     List submissions (paginated)
// @Description Returns a page of the user's submissions, newest first. The status query filters by lifecycle state.
// @Tags        Submissions
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       status     query   string  false "Lifecycle filter"        Enums(pending_upload, uploaded, verifying, verified, not_claimable, rejected)
// @Param       page       query   int     false "Page number"             minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"          minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSubmissionsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions [get]
func (h *Handlers) ListSubmissions(c *gin.Context) {
	page, pageSize := clampPagination(c)

	status := domain.SubmissionStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown submission status")
		return
	}

	items, total, err := h.subSvc.ListPage(c.Request.Context(), userID(c), status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSubmissionsResponse{
		Submissions: items,
		Pagination:  paginationFor(page, pageSize, total),
	})
}

// failSubmission maps submission sentinel errors to HTTP responses.
func (h *Handlers) failSubmission(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	case errors.Is(err, services.ErrUploadIncomplete):
		fail(c, http.StatusConflict, ErrCodeUploadIncomplete, "receipt image has not been uploaded yet")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
