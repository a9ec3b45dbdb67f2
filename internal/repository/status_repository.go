package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

// StatusRepository persists workflow status reference data.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository constructs the repository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

const statusColumns = `id, code, name, group_id, color, sort_order, active, created_at, updated_at`

// List returns all statuses ordered for display. Inactive statuses are
// included; they stay referenceable by existing requests.
func (r *StatusRepository) List(ctx context.Context) ([]models.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM statuses ORDER BY sort_order, code`
	var statuses []models.Status
	if err := r.db.SelectContext(ctx, &statuses, query); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return statuses, nil
}

// GetByID fetches one status.
func (r *StatusRepository) GetByID(ctx context.Context, id string) (*models.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM statuses WHERE id = $1`
	var status models.Status
	if err := r.db.GetContext(ctx, &status, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "status not found")
		}
		return nil, fmt.Errorf("get status %s: %w", id, err)
	}
	return &status, nil
}

// GetByCode fetches one status by its code.
func (r *StatusRepository) GetByCode(ctx context.Context, code string) (*models.Status, error) {
	query := `SELECT ` + statusColumns + ` FROM statuses WHERE code = $1`
	var status models.Status
	if err := r.db.GetContext(ctx, &status, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "status not found")
		}
		return nil, fmt.Errorf("get status by code %s: %w", code, err)
	}
	return &status, nil
}

// ExistingIDs filters the given ids down to those present in the statuses
// table. Used to validate transition sets before replacement.
func (r *StatusRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}
	var found []string
	if err := r.db.SelectContext(ctx, &found, `SELECT id FROM statuses WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check status ids: %w", err)
	}
	result := make(map[string]struct{}, len(found))
	for _, id := range found {
		result[id] = struct{}{}
	}
	return result, nil
}

// Upsert inserts or updates a status row keyed by code.
func (r *StatusRepository) Upsert(ctx context.Context, status *models.Status) error {
	if status.ID == "" {
		status.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}
	status.UpdatedAt = now
	const query = `INSERT INTO statuses (id, code, name, group_id, color, sort_order, active, created_at, updated_at)
	VALUES (:id, :code, :name, :group_id, :color, :sort_order, :active, :created_at, :updated_at)
	ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name, group_id = EXCLUDED.group_id, color = EXCLUDED.color,
	sort_order = EXCLUDED.sort_order, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, status); err != nil {
		return fmt.Errorf("upsert status %s: %w", status.Code, err)
	}
	return nil
}

// ListGroups returns all status groups ordered for display.
func (r *StatusRepository) ListGroups(ctx context.Context) ([]models.StatusGroup, error) {
	const query = `SELECT id, code, name, sort_order, created_at FROM status_groups ORDER BY sort_order, code`
	var groups []models.StatusGroup
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list status groups: %w", err)
	}
	return groups, nil
}
