package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rebottle/go-recycle-backend/internal/domain"
	"github.com/rebottle/go-recycle-backend/internal/services"
	"github.com/rebottle/go-recycle-backend/internal/storage"
)

// stubSubmissionService scripts the SubmissionService interface per test.
type stubSubmissionService struct {
	initFn     func(ctx context.Context, userID, clientID, contentType string) (*domain.Submission, *storage.UploadTarget, error)
	completeFn func(ctx context.Context, userID, id string) (*domain.Submission, error)
	verifyFn   func(ctx context.Context, userID, id string) (*domain.Submission, error)
	getFn      func(ctx context.Context, userID, id string) (*domain.Submission, error)
	listFn     func(ctx context.Context, userID string, status domain.SubmissionStatus, page, pageSize int) ([]domain.Submission, int64, error)
}

func (s *stubSubmissionService) Init(ctx context.Context, userID, clientID, contentType string) (*domain.Submission, *storage.UploadTarget, error) {
	return s.initFn(ctx, userID, clientID, contentType)
}

func (s *stubSubmissionService) Complete(ctx context.Context, userID, id string) (*domain.Submission, error) {
	return s.completeFn(ctx, userID, id)
}

func (s *stubSubmissionService) Verify(ctx context.Context, userID, id string) (*domain.Submission, error) {
	return s.verifyFn(ctx, userID, id)
}

func (s *stubSubmissionService) Get(ctx context.Context, userID, id string) (*domain.Submission, error) {
	return s.getFn(ctx, userID, id)
}

func (s *stubSubmissionService) ListPage(ctx context.Context, userID string, status domain.SubmissionStatus, page, pageSize int) ([]domain.Submission, int64, error) {
	return s.listFn(ctx, userID, status, page, pageSize)
}

func newSubmissionRouter(sub SubmissionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(sub, nil)
	r := gin.New()
	r.POST("/submissions/init", h.InitSubmission)
	r.POST("/submissions/:id/complete", h.CompleteSubmission)
	r.POST("/submissions/:id/verify", h.VerifySubmission)
	r.GET("/submissions", h.ListSubmissions)
	r.GET("/submissions/:id", h.GetSubmission)
	return r
}

func TestInitSubmission_CreatedWithUploadTarget(t *testing.T) {
	sub := &domain.Submission{ID: uuid.NewString(), Status: domain.SubmissionPendingUpload}
	target := &storage.UploadTarget{URL: "https://s3.test/k", Method: "PUT", ExpiresAt: time.Now()}

	r := newSubmissionRouter(&stubSubmissionService{
		initFn: func(_ context.Context, userID, clientID, contentType string) (*domain.Submission, *storage.UploadTarget, error) {
			if userID != "user123" || clientID != "c1" || contentType != "image/jpeg" {
				t.Fatalf("init args = %s/%s/%s", userID, clientID, contentType)
			}
			return sub, target, nil
		},
	})

	body, _ := json.Marshal(InitSubmissionRequest{ClientSubmissionID: "c1", ContentType: "image/jpeg"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/init", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp InitSubmissionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Submission.ID != sub.ID || resp.Upload == nil || resp.Upload.Method != "PUT" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestInitSubmission_BadJSON(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/init", bytes.NewReader([]byte("{")))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestInitSubmission_UnsupportedContentType(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{
		initFn: func(context.Context, string, string, string) (*domain.Submission, *storage.UploadTarget, error) {
			return nil, nil, services.ErrUnsupportedContentType
		},
	})

	body, _ := json.Marshal(InitSubmissionRequest{ClientSubmissionID: "c1", ContentType: "application/pdf"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/init", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeUnsupportedContentType {
		t.Fatalf("code=%s", er.Code)
	}
}

func TestCompleteSubmission_UploadIncompleteConflict(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{
		completeFn: func(context.Context, string, string) (*domain.Submission, error) {
			return nil, services.ErrUploadIncomplete
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/"+uuid.NewString()+"/complete", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeUploadIncomplete {
		t.Fatalf("code=%s", er.Code)
	}
}

func TestCompleteSubmission_NonUUID(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/not-a-uuid/complete", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestVerifySubmission_ReturnsTerminalState(t *testing.T) {
	id := uuid.NewString()
	code := domain.RejectionDuplicateReceipt
	r := newSubmissionRouter(&stubSubmissionService{
		verifyFn: func(_ context.Context, _ string, got string) (*domain.Submission, error) {
			if got != id {
				t.Fatalf("verify id = %s, want %s", got, id)
			}
			return &domain.Submission{ID: id, Status: domain.SubmissionRejected, RejectionCode: &code}, nil
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submissions/"+id+"/verify", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got domain.Submission
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Status != domain.SubmissionRejected || got.RejectionCode == nil || *got.RejectionCode != code {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestGetSubmission_NotFound(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{
		getFn: func(context.Context, string, string) (*domain.Submission, error) {
			return nil, services.ErrSubmissionNotFound
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/submissions/"+uuid.NewString(), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestListSubmissions_StatusFilterAndPagination(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{
		listFn: func(_ context.Context, _ string, status domain.SubmissionStatus, page, pageSize int) ([]domain.Submission, int64, error) {
			if status != domain.SubmissionVerified {
				t.Fatalf("status = %s, want verified", status)
			}
			if page != 2 || pageSize != 5 {
				t.Fatalf("page/pageSize = %d/%d, want 2/5", page, pageSize)
			}
			return []domain.Submission{{ID: "s1"}}, 11, nil
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/submissions?status=verified&page=2&page_size=5", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp ListSubmissionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	p := resp.Pagination
	if p.Total != 11 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
}

func TestListSubmissions_UnknownStatus(t *testing.T) {
	r := newSubmissionRouter(&stubSubmissionService{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/submissions?status=bogus", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}
