package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type requestCrudStub struct {
	*requestStoreStub
	appended []*models.RequestHistoryEntry
	history  map[string][]models.RequestHistoryEntry
	listed   models.RequestFilter
}

func newRequestCrudStub() *requestCrudStub {
	return &requestCrudStub{
		requestStoreStub: newRequestStoreStub(),
		history:          make(map[string][]models.RequestHistoryEntry),
	}
}

func (s *requestCrudStub) Create(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error {
	if request.ID == "" {
		request.ID = "r-new"
	}
	request.RowVersion = 1
	copy := *request
	s.requests[request.ID] = &copy
	if entry != nil {
		entry.RequestID = request.ID
		entry.StatusID = request.StatusID
		s.history[request.ID] = append(s.history[request.ID], *entry)
	}
	return nil
}

func (s *requestCrudStub) AppendHistory(ctx context.Context, entry *models.RequestHistoryEntry) error {
	s.appended = append(s.appended, entry)
	s.history[entry.RequestID] = append(s.history[entry.RequestID], *entry)
	return nil
}

func (s *requestCrudStub) ListHistory(ctx context.Context, requestID string) ([]models.RequestHistoryEntry, error) {
	return s.history[requestID], nil
}

func (s *requestCrudStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	s.listed = filter
	result := make([]models.Request, 0, len(s.requests))
	for _, req := range s.requests {
		result = append(result, *req)
	}
	return result, len(result), nil
}

type statusByCodeStub struct {
	statuses map[string]*models.Status
}

func (s *statusByCodeStub) GetByCode(ctx context.Context, code string) (*models.Status, error) {
	if status, ok := s.statuses[code]; ok {
		return status, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "status not found")
}

type actionsProviderStub struct {
	actions []dto.AvailableAction
}

func (s *actionsProviderStub) GetAvailableActions(ctx context.Context, request *models.Request, actorID string) ([]dto.AvailableAction, error) {
	return s.actions, nil
}

func newRequestServiceFixture() (*RequestService, *requestCrudStub, *auditStub) {
	repo := newRequestCrudStub()
	statuses := &statusByCodeStub{statuses: map[string]*models.Status{
		InitialStatusCode: {ID: "st-draft", Code: InitialStatusCode, Name: "Draft"},
	}}
	actions := &actionsProviderStub{actions: []dto.AvailableAction{{ActionCode: models.ActionSubmit, ToStatusID: "st-review"}}}
	audit := &auditStub{}
	svc := NewRequestService(repo, statuses, actions, audit, nil)
	return svc, repo, audit
}

func TestRequestCreateStartsInInitialStatus(t *testing.T) {
	svc, repo, audit := newRequestServiceFixture()

	request, err := svc.Create(context.Background(), dto.CreateRequestRequest{
		TypeCode: "Purchase",
		Subject:  "  New monitors ",
	}, "u1")
	require.NoError(t, err)

	assert.Equal(t, "st-draft", request.StatusID)
	assert.Equal(t, "New monitors", request.Subject)
	assert.Equal(t, int64(1), request.RowVersion)

	history := repo.history[request.ID]
	require.Len(t, history, 1)
	assert.Nil(t, history[0].ActionCode)
	assert.Equal(t, "st-draft", history[0].StatusID)
	assert.Len(t, audit.logs, 1)
}

func TestRequestCreateValidation(t *testing.T) {
	svc, _, _ := newRequestServiceFixture()

	_, err := svc.Create(context.Background(), dto.CreateRequestRequest{Subject: "x"}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "typeCode")

	_, err = svc.Create(context.Background(), dto.CreateRequestRequest{TypeCode: "Purchase", Subject: "  "}, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestRequestGetCombinesHistoryAndActions(t *testing.T) {
	svc, repo, _ := newRequestServiceFixture()
	repo.requests["r1"] = &models.Request{ID: "r1", TypeCode: "Purchase", StatusID: "st-draft", RowVersion: 1}
	repo.history["r1"] = []models.RequestHistoryEntry{{ID: "h1", RequestID: "r1", StatusID: "st-draft"}}

	detail, err := svc.Get(context.Background(), "r1", "u1")
	require.NoError(t, err)

	assert.Equal(t, "r1", detail.Request.ID)
	assert.Len(t, detail.History, 1)
	require.Len(t, detail.AvailableActions, 1)
	assert.Equal(t, models.ActionSubmit, detail.AvailableActions[0].ActionCode)
}

func TestRequestUpdateNeverTouchesStatus(t *testing.T) {
	svc, repo, _ := newRequestServiceFixture()
	repo.requests["r1"] = &models.Request{ID: "r1", TypeCode: "Purchase", StatusID: "st-review", Subject: "Old", RowVersion: 2}

	subject := "New subject"
	request, err := svc.Update(context.Background(), "r1", dto.UpdateRequestRequest{Subject: &subject}, "u1")
	require.NoError(t, err)

	assert.Equal(t, "New subject", request.Subject)
	assert.Equal(t, "st-review", request.StatusID)
	assert.Equal(t, int64(3), request.RowVersion)
	// Field edits do not write history entries.
	assert.Empty(t, repo.history["r1"])
}

func TestRequestUpdateNoChangesIsNoop(t *testing.T) {
	svc, repo, audit := newRequestServiceFixture()
	repo.requests["r1"] = &models.Request{ID: "r1", Subject: "Same", RowVersion: 2}

	same := "Same"
	request, err := svc.Update(context.Background(), "r1", dto.UpdateRequestRequest{Subject: &same}, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), request.RowVersion)
	assert.Empty(t, audit.logs)
}

func TestAddCommentKeepsStatus(t *testing.T) {
	svc, repo, _ := newRequestServiceFixture()
	repo.requests["r1"] = &models.Request{ID: "r1", StatusID: "st-review", RowVersion: 2}

	entry, err := svc.AddComment(context.Background(), "r1", "  looks fine  ", "u1")
	require.NoError(t, err)

	assert.Nil(t, entry.ActionCode)
	assert.Equal(t, "st-review", entry.StatusID)
	require.NotNil(t, entry.Comment)
	assert.Equal(t, "looks fine", *entry.Comment)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, int64(2), repo.requests["r1"].RowVersion)
}

func TestAddCommentRequiresText(t *testing.T) {
	svc, _, _ := newRequestServiceFixture()
	_, err := svc.AddComment(context.Background(), "r1", "   ", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comment")
}

func TestRequestListPassesFilter(t *testing.T) {
	svc, repo, _ := newRequestServiceFixture()
	repo.requests["r1"] = &models.Request{ID: "r1", TypeCode: "Purchase", StatusID: "st-draft"}

	_, pagination, err := svc.List(context.Background(), dto.RequestQuery{TypeCode: "Purchase", Page: 2, PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, "Purchase", repo.listed.TypeCode)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
