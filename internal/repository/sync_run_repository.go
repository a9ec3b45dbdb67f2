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

// SyncRunRepository persists synchronization runs and their errors.
type SyncRunRepository struct {
	db *sqlx.DB
}

// NewSyncRunRepository constructs the repository.
func NewSyncRunRepository(db *sqlx.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

const runColumns = `id, connection_id, scope, mode, status, dry_run, started_by, started_at, finished_at, processed, error_count, counters, failure_reason`

// Add inserts a new run in Started state.
func (r *SyncRunRepository) Add(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.SyncRunStarted
	}
	const query = `INSERT INTO sync_runs
	(id, connection_id, scope, mode, status, dry_run, started_by, started_at, finished_at, processed, error_count, counters, failure_reason)
	VALUES (:id, :connection_id, :scope, :mode, :status, :dry_run, :started_by, :started_at, :finished_at, :processed, :error_count, :counters, :failure_reason)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("add sync run: %w", err)
	}
	return nil
}

// Finish marks the run Completed or Failed with its final counters. Runs are
// immutable afterwards.
func (r *SyncRunRepository) Finish(ctx context.Context, params models.SyncRunFinish) error {
	const query = `UPDATE sync_runs SET
	status = $1, processed = $2, error_count = $3, counters = $4, failure_reason = $5, finished_at = $6
	WHERE id = $7 AND status = $8`
	res, err := r.db.ExecContext(ctx, query,
		params.Status, params.Processed, params.ErrorCount, params.Counters, params.FailureReason, params.FinishedAt,
		params.ID, models.SyncRunStarted)
	if err != nil {
		return fmt.Errorf("finish sync run %s: %w", params.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish sync run %s: %w", params.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("finish sync run %s: run not in started state", params.ID)
	}
	return nil
}

// AddError records one per-record failure or review item.
func (r *SyncRunRepository) AddError(ctx context.Context, syncErr *models.SyncError) error {
	if syncErr.ID == "" {
		syncErr.ID = uuid.NewString()
	}
	if syncErr.CreatedAt.IsZero() {
		syncErr.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sync_errors (id, run_id, entity_type, external_key, kind, message, details, created_at)
	VALUES (:id, :run_id, :entity_type, :external_key, :kind, :message, :details, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, syncErr); err != nil {
		return fmt.Errorf("add sync error: %w", err)
	}
	return nil
}

// GetByID fetches one run.
func (r *SyncRunRepository) GetByID(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = $1`
	var run models.SyncRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sync run not found")
		}
		return nil, fmt.Errorf("get sync run %s: %w", id, err)
	}
	return &run, nil
}

// GetRuns returns runs matching the filter, newest first.
func (r *SyncRunRepository) GetRuns(ctx context.Context, filter models.SyncRunFilter) ([]models.SyncRun, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.ConnectionID != "" {
		args = append(args, filter.ConnectionID)
		conditions = append(conditions, fmt.Sprintf("connection_id = $%d", len(args)))
	}
	if filter.Scope != "" {
		args = append(args, filter.Scope)
		conditions = append(conditions, fmt.Sprintf("scope = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM sync_runs%s ORDER BY started_at DESC LIMIT %d OFFSET %d",
		runColumns, where, limit, offset)

	var runs []models.SyncRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

// GetLastSuccessfulRun returns the most recent Completed run for a scope.
func (r *SyncRunRepository) GetLastSuccessfulRun(ctx context.Context, scope models.SyncScope) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs
	WHERE scope = $1 AND status = $2 ORDER BY started_at DESC LIMIT 1`
	var run models.SyncRun
	if err := r.db.GetContext(ctx, &run, query, scope, models.SyncRunCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no successful run for scope")
		}
		return nil, fmt.Errorf("get last successful run for %s: %w", scope, err)
	}
	return &run, nil
}

// GetRunErrors returns the errors recorded for one run, oldest first.
func (r *SyncRunRepository) GetRunErrors(ctx context.Context, runID string) ([]models.SyncError, error) {
	const query = `SELECT id, run_id, entity_type, external_key, kind, message, details, created_at
	FROM sync_errors WHERE run_id = $1 ORDER BY created_at, id`
	var syncErrors []models.SyncError
	if err := r.db.SelectContext(ctx, &syncErrors, query, runID); err != nil {
		return nil, fmt.Errorf("list errors for run %s: %w", runID, err)
	}
	return syncErrors, nil
}
