package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type itemStore interface {
	GetByID(ctx context.Context, id string) (*models.Item, error)
	FindByNormalizedCode(ctx context.Context, kind models.ItemKind, normalizedCode string) ([]models.Item, error)
	Create(ctx context.Context, item *models.Item) error
	Update(ctx context.Context, item *models.Item) error
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)
}

// ItemService exposes the master-data catalog: items, components and
// counterparties kept under one model, discriminated by kind.
type ItemService struct {
	store  itemStore
	logger *zap.Logger
}

func NewItemService(store itemStore, logger *zap.Logger) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{store: store, logger: logger}
}

// Get returns one catalog entry.
func (s *ItemService) Get(ctx context.Context, id string) (*models.Item, error) {
	return s.store.GetByID(ctx, id)
}

// List returns catalog entries with pagination.
func (s *ItemService) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > 200 {
		filter.PageSize = 200
	}
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Create adds a catalog entry. Codes are stored alongside their normalized
// form so external matching and manual entry agree on identity.
func (s *ItemService) Create(ctx context.Context, item *models.Item) error {
	item.Code = strings.TrimSpace(item.Code)
	if item.Code == "" {
		return appErrors.Clone(appErrors.ErrValidation, "item code is required")
	}
	switch item.Kind {
	case models.ItemKindItem, models.ItemKindComponent, models.ItemKindCounterparty:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown item kind")
	}
	item.NormalizedCode = NormalizeCode(item.Code)
	if err := s.store.Create(ctx, item); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item")
	}
	return nil
}

// Update modifies a catalog entry, recomputing the normalized code.
func (s *ItemService) Update(ctx context.Context, item *models.Item) error {
	item.Code = strings.TrimSpace(item.Code)
	if item.Code == "" {
		return appErrors.Clone(appErrors.ErrValidation, "item code is required")
	}
	item.NormalizedCode = NormalizeCode(item.Code)
	return s.store.Update(ctx, item)
}
