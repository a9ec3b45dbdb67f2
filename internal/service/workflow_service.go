package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/dto"
	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type transitionStore interface {
	GetTransitions(ctx context.Context, typeCode string) ([]models.WorkflowTransition, error)
	ReplaceTransitions(ctx context.Context, typeCode string, transitions []models.WorkflowTransition) error
}

type workflowRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
	Save(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error
}

type statusIDChecker interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// PermissionProvider returns the permission codes held by an actor. The
// engine only reads permissions, never mutates them.
type PermissionProvider interface {
	GetPermissionSet(ctx context.Context, actorID string) (models.PermissionSet, error)
}

type transitionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// WorkflowService is the request workflow engine: it validates and applies
// single actions against requests using the per-type transition table.
type WorkflowService struct {
	transitions transitionStore
	requests    workflowRequestStore
	statuses    statusIDChecker
	permissions PermissionProvider
	cache       transitionCache
	audit       auditLogger
	metrics     *MetricsService
	logger      *zap.Logger
	cacheTTL    time.Duration

	// In-process snapshot per type code, swapped atomically under mu.
	// Readers get an immutable *TransitionSet and never observe a
	// partially replaced table.
	mu        sync.RWMutex
	snapshots map[string]tableSnapshot
}

type tableSnapshot struct {
	set      *models.TransitionSet
	loadedAt time.Time
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithTransitionCache plugs the shared Redis cache for transition sets.
func WithTransitionCache(cache transitionCache, ttl time.Duration) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithWorkflowMetrics attaches the metrics service.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.metrics = metrics
	}
}

// NewWorkflowService constructs the engine.
func NewWorkflowService(transitions transitionStore, requests workflowRequestStore, statuses statusIDChecker, permissions PermissionProvider, audit auditLogger, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		transitions: transitions,
		requests:    requests,
		statuses:    statuses,
		permissions: permissions,
		audit:       audit,
		logger:      logger,
		cacheTTL:    10 * time.Minute,
		snapshots:   make(map[string]tableSnapshot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Apply performs one workflow action: transition lookup, permission check,
// then status change plus history append as one atomic unit. expectedVersion
// > 0 asserts the row version the caller read; a stale value fails with a
// concurrency conflict before any write.
func (s *WorkflowService) Apply(ctx context.Context, requestID, actionCode, actorID, comment string, expectedVersion int64) (*models.Request, *models.RequestHistoryEntry, error) {
	actionCode = strings.TrimSpace(actionCode)
	if actionCode == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "actionCode is required")
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if expectedVersion > 0 && expectedVersion != request.RowVersion {
		s.observeApply(request.TypeCode, actionCode, "conflict")
		return nil, nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "")
	}

	set, err := s.transitionSet(ctx, request.TypeCode)
	if err != nil {
		return nil, nil, err
	}

	transition, ok := set.Lookup(request.StatusID, actionCode)
	if !ok {
		s.observeApply(request.TypeCode, actionCode, "no_such_transition")
		return nil, nil, appErrors.Clone(appErrors.ErrNoSuchTransition,
			fmt.Sprintf("action %s is not available from the current status", actionCode))
	}

	if transition.RequiredPermission != nil {
		perms, err := s.permissions.GetPermissionSet(ctx, actorID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor permissions")
		}
		if !perms.Has(*transition.RequiredPermission) {
			s.observeApply(request.TypeCode, actionCode, "forbidden")
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden,
				fmt.Sprintf("action %s requires permission %s", actionCode, *transition.RequiredPermission))
		}
	}

	previousStatus := request.StatusID
	request.StatusID = transition.ToStatusID
	request.UpdatedAt = time.Now().UTC()

	entry := &models.RequestHistoryEntry{
		RequestID:  request.ID,
		ActionCode: &transition.ActionCode,
		ActorID:    actorID,
		StatusID:   transition.ToStatusID,
		CreatedAt:  request.UpdatedAt,
	}
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		entry.Comment = &trimmed
	}

	if err := s.requests.Save(ctx, request, entry); err != nil {
		// Roll the in-memory copy back so callers do not see a status the
		// store rejected.
		request.StatusID = previousStatus
		if appErrors.FromError(err).Code == appErrors.ErrConcurrencyConflict.Code {
			s.observeApply(request.TypeCode, actionCode, "conflict")
		}
		return nil, nil, err
	}

	s.observeApply(request.TypeCode, actionCode, "applied")
	s.emitAudit(ctx, actorID, models.AuditActionRequestAction, request.ID, map[string]interface{}{
		"action":     actionCode,
		"fromStatus": previousStatus,
		"toStatus":   transition.ToStatusID,
	})
	return request, entry, nil
}

// GetAvailableActions enumerates the enabled transitions from the request's
// current status for which the actor holds the required permission.
func (s *WorkflowService) GetAvailableActions(ctx context.Context, request *models.Request, actorID string) ([]dto.AvailableAction, error) {
	set, err := s.transitionSet(ctx, request.TypeCode)
	if err != nil {
		return nil, err
	}

	outgoing := set.From(request.StatusID)
	if len(outgoing) == 0 {
		return []dto.AvailableAction{}, nil
	}

	var perms models.PermissionSet
	actions := make([]dto.AvailableAction, 0, len(outgoing))
	for _, tr := range outgoing {
		if tr.RequiredPermission != nil {
			if perms == nil {
				perms, err = s.permissions.GetPermissionSet(ctx, actorID)
				if err != nil {
					return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load actor permissions")
				}
			}
			if !perms.Has(*tr.RequiredPermission) {
				continue
			}
		}
		actions = append(actions, dto.AvailableAction{ActionCode: tr.ActionCode, ToStatusID: tr.ToStatusID})
	}
	return actions, nil
}

// GetTransitions returns the stored transition rows for a type code.
func (s *WorkflowService) GetTransitions(ctx context.Context, typeCode string) ([]models.WorkflowTransition, error) {
	return s.transitions.GetTransitions(ctx, typeCode)
}

// ReplaceTransitions validates and atomically swaps the whole transition set
// for one type code, then invalidates every cached snapshot of it.
func (s *WorkflowService) ReplaceTransitions(ctx context.Context, typeCode string, rows []dto.TransitionRow, actorID string) error {
	typeCode = strings.TrimSpace(typeCode)
	if typeCode == "" {
		return appErrors.Clone(appErrors.ErrValidation, "typeCode is required")
	}

	transitions := make([]models.WorkflowTransition, 0, len(rows))
	statusIDs := make([]string, 0, len(rows)*2)
	seen := make(map[models.TransitionKey]struct{}, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.ActionCode) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every transition needs a non-empty action code")
		}
		if row.FromStatusID == "" || row.ToStatusID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "every transition needs from and to status ids")
		}
		if row.Enabled {
			key := models.TransitionKey{FromStatusID: row.FromStatusID, ActionCode: row.ActionCode}
			if _, dup := seen[key]; dup {
				return appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("duplicate enabled transition for (%s, %s)", row.FromStatusID, row.ActionCode))
			}
			seen[key] = struct{}{}
		}
		statusIDs = append(statusIDs, row.FromStatusID, row.ToStatusID)
		transitions = append(transitions, models.WorkflowTransition{
			TypeCode:           typeCode,
			FromStatusID:       row.FromStatusID,
			ActionCode:         strings.TrimSpace(row.ActionCode),
			ToStatusID:         row.ToStatusID,
			RequiredPermission: row.RequiredPermission,
			Enabled:            row.Enabled,
		})
	}

	existing, err := s.statuses.ExistingIDs(ctx, statusIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate status ids")
	}
	for _, id := range statusIDs {
		if _, ok := existing[id]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status id %s", id))
		}
	}

	if err := s.transitions.ReplaceTransitions(ctx, typeCode, transitions); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace transitions")
	}

	s.invalidate(ctx, typeCode)
	s.emitAudit(ctx, actorID, models.AuditActionTransitionsReplace, typeCode, map[string]interface{}{
		"transitions": len(transitions),
	})
	return nil
}

// transitionSet returns the immutable snapshot for a type code, loading it
// from Redis or the store when the in-process copy is missing or stale.
func (s *WorkflowService) transitionSet(ctx context.Context, typeCode string) (*models.TransitionSet, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[typeCode]
	s.mu.RUnlock()
	if ok && time.Since(snap.loadedAt) < s.cacheTTL {
		return snap.set, nil
	}

	var rows []models.WorkflowTransition
	loaded := false
	if s.cache != nil {
		if err := s.cache.Get(ctx, transitionCacheKey(typeCode), &rows); err == nil {
			loaded = true
		}
	}
	if !loaded {
		var err error
		rows, err = s.transitions.GetTransitions(ctx, typeCode)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transition table")
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, transitionCacheKey(typeCode), rows, s.cacheTTL); err != nil {
				s.logger.Warn("failed to cache transition table", zap.String("type", typeCode), zap.Error(err))
			}
		}
	}

	set := models.NewTransitionSet(typeCode, rows)
	s.mu.Lock()
	s.snapshots[typeCode] = tableSnapshot{set: set, loadedAt: time.Now()}
	s.mu.Unlock()
	return set, nil
}

func (s *WorkflowService) invalidate(ctx context.Context, typeCode string) {
	s.mu.Lock()
	delete(s.snapshots, typeCode)
	s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Delete(ctx, transitionCacheKey(typeCode)); err != nil {
			s.logger.Warn("failed to invalidate transition cache", zap.String("type", typeCode), zap.Error(err))
		}
	}
}

func (s *WorkflowService) observeApply(typeCode, actionCode, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveWorkflowApply(typeCode, actionCode, outcome)
	}
}

func (s *WorkflowService) emitAudit(ctx context.Context, actorID, action, resourceID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	body, _ := json.Marshal(payload)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "request_workflow",
		ResourceID: &resourceID,
		NewValues:  body,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func transitionCacheKey(typeCode string) string {
	return "workflow:transitions:" + typeCode
}
