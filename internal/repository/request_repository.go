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

// RequestRepository persists requests and their append-only history.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, type_code, status_id, subject, description, org_unit_id, assignee_id, due_date, created_by, created_at, updated_at, row_version`

// Create inserts a new request together with its creation history entry.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt
	request.RowVersion = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO requests
	(id, type_code, status_id, subject, description, org_unit_id, assignee_id, due_date, created_by, created_at, updated_at, row_version)
	VALUES (:id, :type_code, :status_id, :subject, :description, :org_unit_id, :assignee_id, :due_date, :created_by, :created_at, :updated_at, :row_version)`
	if _, err := tx.NamedExecContext(ctx, insert, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if entry != nil {
		entry.RequestID = request.ID
		entry.StatusID = request.StatusID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return &request, nil
}

// Save persists a status change together with its history entry as one
// atomic unit, guarded by the optimistic row version. A stale version fails
// with a concurrency conflict and writes nothing.
func (r *RequestRepository) Save(ctx context.Context, request *models.Request, entry *models.RequestHistoryEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE requests SET
	status_id = $1, subject = $2, description = $3, org_unit_id = $4, assignee_id = $5, due_date = $6,
	updated_at = $7, row_version = row_version + 1
	WHERE id = $8 AND row_version = $9`
	res, err := tx.ExecContext(ctx, update,
		request.StatusID, request.Subject, request.Description, request.OrgUnitID, request.AssigneeID, request.DueDate,
		request.UpdatedAt, request.ID, request.RowVersion)
	if err != nil {
		return fmt.Errorf("save request %s: %w", request.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save request %s: %w", request.ID, err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrConcurrencyConflict, "")
	}
	request.RowVersion++

	if entry != nil {
		entry.RequestID = request.ID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save request: %w", err)
	}
	return nil
}

// AppendHistory records a comment-only history entry without touching the
// request row.
func (r *RequestRepository) AppendHistory(ctx context.Context, entry *models.RequestHistoryEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append history: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append history: %w", err)
	}
	return nil
}

// ListHistory returns the request's history oldest first.
func (r *RequestRepository) ListHistory(ctx context.Context, requestID string) ([]models.RequestHistoryEntry, error) {
	const query = `SELECT id, request_id, action_code, actor_id, status_id, comment, created_at
	FROM request_history WHERE request_id = $1 ORDER BY created_at, id`
	var entries []models.RequestHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, requestID); err != nil {
		return nil, fmt.Errorf("list history for %s: %w", requestID, err)
	}
	return entries, nil
}

// List returns requests matching the filter, newest first, plus the total
// match count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.TypeCode != "" {
		args = append(args, filter.TypeCode)
		conditions = append(conditions, fmt.Sprintf("type_code = $%d", len(args)))
	}
	if filter.StatusID != "" {
		args = append(args, filter.StatusID)
		conditions = append(conditions, fmt.Sprintf("status_id = $%d", len(args)))
	}
	if filter.AssigneeID != "" {
		args = append(args, filter.AssigneeID)
		conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(subject) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf("SELECT %s FROM requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		requestColumns, where, pageSize, (page-1)*pageSize)

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	return requests, total, nil
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *models.RequestHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO request_history
	(id, request_id, action_code, actor_id, status_id, comment, created_at)
	VALUES (:id, :request_id, :action_code, :actor_id, :status_id, :comment, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}
