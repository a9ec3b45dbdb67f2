package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type statusStore interface {
	List(ctx context.Context) ([]models.Status, error)
	GetByID(ctx context.Context, id string) (*models.Status, error)
	Upsert(ctx context.Context, status *models.Status) error
	ListGroups(ctx context.Context) ([]models.StatusGroup, error)
}

// StatusService exposes the status dictionary.
type StatusService struct {
	store  statusStore
	logger *zap.Logger
}

func NewStatusService(store statusStore, logger *zap.Logger) *StatusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{store: store, logger: logger}
}

// List returns all statuses ordered by group and sort order.
func (s *StatusService) List(ctx context.Context) ([]models.Status, error) {
	return s.store.List(ctx)
}

// Get returns one status by id.
func (s *StatusService) Get(ctx context.Context, id string) (*models.Status, error) {
	return s.store.GetByID(ctx, id)
}

// ListGroups returns the status groups.
func (s *StatusService) ListGroups(ctx context.Context) ([]models.StatusGroup, error) {
	return s.store.ListGroups(ctx)
}

// Upsert creates or updates a dictionary entry keyed by code.
func (s *StatusService) Upsert(ctx context.Context, status *models.Status) error {
	status.Code = strings.ToUpper(strings.TrimSpace(status.Code))
	if status.Code == "" {
		return appErrors.Clone(appErrors.ErrValidation, "status code is required")
	}
	if strings.TrimSpace(status.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "status name is required")
	}
	if err := s.store.Upsert(ctx, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save status")
	}
	return nil
}
