package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// TransitionRepository persists workflow transition tables.
type TransitionRepository struct {
	db *sqlx.DB
}

// NewTransitionRepository constructs the repository.
func NewTransitionRepository(db *sqlx.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

// GetTransitions returns every transition row for a type code, enabled and
// disabled alike, in a stable order.
func (r *TransitionRepository) GetTransitions(ctx context.Context, typeCode string) ([]models.WorkflowTransition, error) {
	const query = `SELECT id, type_code, from_status_id, action_code, to_status_id, required_permission, enabled, created_at
	FROM workflow_transitions WHERE type_code = $1
	ORDER BY from_status_id, action_code`
	var transitions []models.WorkflowTransition
	if err := r.db.SelectContext(ctx, &transitions, query, typeCode); err != nil {
		return nil, fmt.Errorf("get transitions for %s: %w", typeCode, err)
	}
	return transitions, nil
}

// ReplaceTransitions atomically swaps the whole transition set for one type
// code. Old rows for that type are deleted and the new set inserted inside
// one transaction, so no state with a mix of old and new rows is ever
// visible.
func (r *TransitionRepository) ReplaceTransitions(ctx context.Context, typeCode string, transitions []models.WorkflowTransition) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace transitions: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE type_code = $1`, typeCode); err != nil {
		return fmt.Errorf("clear transitions for %s: %w", typeCode, err)
	}

	const insert = `INSERT INTO workflow_transitions
	(id, type_code, from_status_id, action_code, to_status_id, required_permission, enabled, created_at)
	VALUES (:id, :type_code, :from_status_id, :action_code, :to_status_id, :required_permission, :enabled, :created_at)`
	now := time.Now().UTC()
	for i := range transitions {
		tr := transitions[i]
		tr.TypeCode = typeCode
		if tr.ID == "" {
			tr.ID = uuid.NewString()
		}
		if tr.CreatedAt.IsZero() {
			tr.CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insert, tr); err != nil {
			return fmt.Errorf("insert transition (%s,%s,%s): %w", typeCode, tr.FromStatusID, tr.ActionCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace transitions: %w", err)
	}
	return nil
}
