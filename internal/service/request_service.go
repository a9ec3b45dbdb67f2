package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

// InitialStatusCode is the status every new request starts in. Creation is
// the only path that sets a status outside the transition table.
const InitialStatusCode = "DRAFT"

type requestStore interface {
	Create(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	Save(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error
	AppendHistory(ctx context.Context, entry *models.RequestHistoryEntry) error
	ListHistory(ctx context.Context, requestID string) ([]models.RequestHistoryEntry, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
}

type statusByCodeStore interface {
	GetByCode(ctx context.Context, code string) (*models.Status, error)
}

type availableActionsProvider interface {
	GetAvailableActions(ctx context.Context, request *models.Request, actorID string) ([]dto.AvailableAction, error)
}

// RequestService handles request CRUD around the workflow engine: creation
// in the initial status, field edits that never touch status, comments and
// listing.
type RequestService struct {
	repo     requestStore
	statuses statusByCodeStore
	workflow availableActionsProvider
	audit    auditLogger
	logger   *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(repo requestStore, statuses statusByCodeStore, workflow availableActionsProvider, audit auditLogger, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{repo: repo, statuses: statuses, workflow: workflow, audit: audit, logger: logger}
}

// Create registers a new request in the initial status and records the
// creation history entry.
func (s *RequestService) Create(ctx context.Context, req dto.CreateRequestRequest, actorID string) (*models.Request, error) {
	typeCode := strings.TrimSpace(req.TypeCode)
	if typeCode == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "typeCode is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is required")
	}

	initial, err := s.statuses.GetByCode(ctx, InitialStatusCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "initial status is not configured")
	}

	request := &models.Request{
		TypeCode:    typeCode,
		StatusID:    initial.ID,
		Subject:     strings.TrimSpace(req.Subject),
		Description: req.Description,
		OrgUnitID:   req.OrgUnitID,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		CreatedBy:   actorID,
	}
	entry := &models.RequestHistoryEntry{
		ActorID:  actorID,
		StatusID: initial.ID,
	}
	if err := s.repo.Create(ctx, request, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitAudit(ctx, actorID, models.AuditActionRequestCreate, request.ID, map[string]interface{}{
		"typeCode": typeCode,
		"statusId": initial.ID,
	})
	return request, nil
}

// Get returns the request with its history and the actions the actor may
// take from the current status.
func (s *RequestService) Get(ctx context.Context, id, actorID string) (*dto.RequestDetail, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request history")
	}
	actions, err := s.workflow.GetAvailableActions(ctx, request, actorID)
	if err != nil {
		return nil, err
	}
	return &dto.RequestDetail{Request: *request, History: history, AvailableActions: actions}, nil
}

// List returns requests matching the query plus pagination metadata.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery) ([]models.Request, *models.Pagination, error) {
	filter := models.RequestFilter{
		TypeCode:   query.TypeCode,
		StatusID:   query.StatusID,
		AssigneeID: query.AssigneeID,
		Search:     query.Search,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	return requests, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update edits request fields. Status is never touched here; that is the
// workflow engine's job.
func (s *RequestService) Update(ctx context.Context, id string, req dto.UpdateRequestRequest, actorID string) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.Subject != nil && *req.Subject != request.Subject {
		if strings.TrimSpace(*req.Subject) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject cannot be empty")
		}
		request.Subject = strings.TrimSpace(*req.Subject)
		changed = true
	}
	if req.Description != nil && *req.Description != request.Description {
		request.Description = *req.Description
		changed = true
	}
	if req.OrgUnitID != nil {
		request.OrgUnitID = req.OrgUnitID
		changed = true
	}
	if req.AssigneeID != nil {
		request.AssigneeID = req.AssigneeID
		changed = true
	}
	if req.DueDate != nil {
		request.DueDate = req.DueDate
		changed = true
	}
	if !changed {
		return request, nil
	}

	request.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, request, nil); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actorID, models.AuditActionRequestUpdate, request.ID, nil)
	return request, nil
}

// AddComment appends a comment-only history entry.
func (s *RequestService) AddComment(ctx context.Context, id, comment, actorID string) (*models.RequestHistoryEntry, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment is required")
	}

	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	entry := &models.RequestHistoryEntry{
		RequestID: request.ID,
		ActorID:   actorID,
		StatusID:  request.StatusID,
		Comment:   &comment,
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append comment")
	}

	s.emitAudit(ctx, actorID, models.AuditActionRequestComment, request.ID, nil)
	return entry, nil
}

func (s *RequestService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "request",
		ResourceID: &resourceID,
		NewValues:  body,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
