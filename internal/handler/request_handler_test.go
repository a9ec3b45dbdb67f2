package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/middleware"
	"github.com/Paashik/MyIS-sub004/internal/models"
	"github.com/Paashik/MyIS-sub004/internal/service"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type requestRepoStub struct {
	requests map[string]*models.Request
	history  []models.RequestHistoryEntry
	listResp []models.Request
	total    int
}

func newRequestRepoStub() *requestRepoStub {
	return &requestRepoStub{requests: make(map[string]*models.Request)}
}

func (s *requestRepoStub) Create(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error {
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", len(s.requests)+1)
	}
	request.RowVersion = 1
	s.requests[request.ID] = request
	if entry != nil {
		entry.RequestID = request.ID
		s.history = append(s.history, *entry)
	}
	return nil
}

func (s *requestRepoStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	request, ok := s.requests[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	copied := *request
	return &copied, nil
}

func (s *requestRepoStub) Save(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error {
	stored, ok := s.requests[request.ID]
	if !ok {
		return appErrors.ErrNotFound
	}
	if stored.RowVersion != request.RowVersion {
		return appErrors.ErrConcurrencyConflict
	}
	request.RowVersion++
	saved := *request
	s.requests[request.ID] = &saved
	if entry != nil {
		s.history = append(s.history, *entry)
	}
	return nil
}

func (s *requestRepoStub) AppendHistory(ctx context.Context, entry *models.RequestHistoryEntry) error {
	s.history = append(s.history, *entry)
	return nil
}

func (s *requestRepoStub) ListHistory(ctx context.Context, requestID string) ([]models.RequestHistoryEntry, error) {
	var entries []models.RequestHistoryEntry
	for _, entry := range s.history {
		if entry.RequestID == requestID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *requestRepoStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	return s.listResp, s.total, nil
}

type statusByCodeStub struct {
	statuses map[string]*models.Status
}

func (s *statusByCodeStub) GetByCode(ctx context.Context, code string) (*models.Status, error) {
	status, ok := s.statuses[code]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	return status, nil
}

type transitionRepoStub struct {
	transitions []models.WorkflowTransition
}

func (s *transitionRepoStub) GetTransitions(ctx context.Context, typeCode string) ([]models.WorkflowTransition, error) {
	return s.transitions, nil
}

func (s *transitionRepoStub) ReplaceTransitions(ctx context.Context, typeCode string, transitions []models.WorkflowTransition) error {
	s.transitions = transitions
	return nil
}

type statusIDStub struct{}

func (statusIDStub) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		existing[id] = struct{}{}
	}
	return existing, nil
}

type permissionStub struct {
	permissions []string
}

func (s *permissionStub) GetPermissionSet(ctx context.Context, actorID string) (models.PermissionSet, error) {
	return models.NewPermissionSet(s.permissions), nil
}

type auditSinkStub struct {
	logs []models.AuditLog
}

func (s *auditSinkStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func testClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Login: "manager", FullName: "Test Manager"}
}

func newRequestHandlerFixture(repo *requestRepoStub, transitions []models.WorkflowTransition) *RequestHandler {
	workflow := service.NewWorkflowService(
		&transitionRepoStub{transitions: transitions},
		repo,
		statusIDStub{},
		&permissionStub{},
		&auditSinkStub{},
		nil,
	)
	requests := service.NewRequestService(
		repo,
		&statusByCodeStub{statuses: map[string]*models.Status{
			service.InitialStatusCode: {ID: "st-draft", Code: service.InitialStatusCode, Active: true},
		}},
		workflow,
		&auditSinkStub{},
		nil,
	)
	return NewRequestHandler(requests, workflow)
}

func TestRequestHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newRequestRepoStub()
	handler := newRequestHandlerFixture(repo, nil)

	payload, _ := json.Marshal(dto.CreateRequestRequest{TypeCode: "PURCHASE", Subject: "New laptop"})
	c, w := newGinContext(http.MethodPost, "/requests", payload)
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.Request `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "st-draft", envelope.Data.StatusID)
	require.Equal(t, "user-1", envelope.Data.CreatedBy)
}

func TestRequestHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandlerFixture(newRequestRepoStub(), nil)

	c, w := newGinContext(http.MethodPost, "/requests", []byte("{not json"))
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerCreateUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandlerFixture(newRequestRepoStub(), nil)

	payload, _ := json.Marshal(dto.CreateRequestRequest{TypeCode: "PURCHASE", Subject: "New laptop"})
	c, w := newGinContext(http.MethodPost, "/requests", payload)

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newRequestRepoStub()
	repo.requests["req-1"] = &models.Request{ID: "req-1", TypeCode: "PURCHASE", StatusID: "st-draft", RowVersion: 1}
	handler := newRequestHandlerFixture(repo, nil)

	c, w := newGinContext(http.MethodGet, "/requests/req-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.RequestDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "req-1", envelope.Data.Request.ID)
}

func TestRequestHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRequestHandlerFixture(newRequestRepoStub(), nil)

	c, w := newGinContext(http.MethodGet, "/requests/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestHandlerApplyAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newRequestRepoStub()
	repo.requests["req-1"] = &models.Request{ID: "req-1", TypeCode: "PURCHASE", StatusID: "st-draft", RowVersion: 1}
	handler := newRequestHandlerFixture(repo, []models.WorkflowTransition{
		{ID: "tr-1", TypeCode: "PURCHASE", FromStatusID: "st-draft", ActionCode: "SUBMIT", ToStatusID: "st-review", Enabled: true},
	})

	payload, _ := json.Marshal(dto.ApplyActionRequest{ActionCode: "SUBMIT", RowVersion: 1})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/actions", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.ApplyAction(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Request models.Request `json:"request"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "st-review", envelope.Data.Request.StatusID)
}

func TestRequestHandlerApplyActionUnknownAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newRequestRepoStub()
	repo.requests["req-1"] = &models.Request{ID: "req-1", TypeCode: "PURCHASE", StatusID: "st-draft", RowVersion: 1}
	handler := newRequestHandlerFixture(repo, []models.WorkflowTransition{
		{ID: "tr-1", TypeCode: "PURCHASE", FromStatusID: "st-draft", ActionCode: "SUBMIT", ToStatusID: "st-review", Enabled: true},
	})

	payload, _ := json.Marshal(dto.ApplyActionRequest{ActionCode: "APPROVE"})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/actions", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.ApplyAction(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRequestHandlerApplyActionStaleVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newRequestRepoStub()
	repo.requests["req-1"] = &models.Request{ID: "req-1", TypeCode: "PURCHASE", StatusID: "st-draft", RowVersion: 4}
	handler := newRequestHandlerFixture(repo, []models.WorkflowTransition{
		{ID: "tr-1", TypeCode: "PURCHASE", FromStatusID: "st-draft", ActionCode: "SUBMIT", ToStatusID: "st-review", Enabled: true},
	})

	payload, _ := json.Marshal(dto.ApplyActionRequest{ActionCode: "SUBMIT", RowVersion: 1})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/actions", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.ApplyAction(c)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, int64(4), repo.requests["req-1"].RowVersion)
}

func TestRequestHandlerAddComment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newRequestRepoStub()
	repo.requests["req-1"] = &models.Request{ID: "req-1", TypeCode: "PURCHASE", StatusID: "st-draft", RowVersion: 1}
	handler := newRequestHandlerFixture(repo, nil)

	payload, _ := json.Marshal(dto.AddCommentRequest{Comment: "please hurry"})
	c, w := newGinContext(http.MethodPost, "/requests/req-1/comments", payload)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.AddComment(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.history, 1)
	require.Nil(t, repo.history[0].ActionCode)
}
