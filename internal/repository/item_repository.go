package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

// ItemRepository persists MDM catalog items.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository constructs the repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, code, normalized_code, name, description, kind, unit, manufacturer, created_at, updated_at`

// GetByID fetches one catalog item.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	var item models.Item
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// FindByNormalizedCode returns every item of the given kind sharing the
// normalized code. The resolver treats more than one match as ambiguous.
func (r *ItemRepository) FindByNormalizedCode(ctx context.Context, kind models.ItemKind, normalizedCode string) ([]models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE kind = $1 AND normalized_code = $2 ORDER BY created_at`
	var items []models.Item
	if err := r.db.SelectContext(ctx, &items, query, kind, normalizedCode); err != nil {
		return nil, fmt.Errorf("find items by code %s: %w", normalizedCode, err)
	}
	return items, nil
}

// Create inserts a new catalog item.
func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO items (id, code, normalized_code, name, description, kind, unit, manufacturer, created_at, updated_at)
	VALUES (:id, :code, :normalized_code, :name, :description, :kind, :unit, :manufacturer, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create item %s: %w", item.Code, err)
	}
	return nil
}

// Update persists the item's current field values.
func (r *ItemRepository) Update(ctx context.Context, item *models.Item) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE items SET
	code = :code, normalized_code = :normalized_code, name = :name, description = :description,
	unit = :unit, manufacturer = :manufacturer, updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "item not found")
	}
	return nil
}

// List returns catalog items matching the filter plus the total count.
func (r *ItemRepository) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)

	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM items"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf("SELECT %s FROM items%s ORDER BY code LIMIT %d OFFSET %d",
		itemColumns, where, pageSize, (page-1)*pageSize)

	var items []models.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	return items, total, nil
}
