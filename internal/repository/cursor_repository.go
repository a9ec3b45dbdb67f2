package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// CursorRepository persists per-(connection, source entity) sync cursors.
type CursorRepository struct {
	db *sqlx.DB
}

// NewCursorRepository constructs the repository.
func NewCursorRepository(db *sqlx.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// GetLastProcessedKey returns the stored cursor, or empty when no delta run
// has committed yet.
func (r *CursorRepository) GetLastProcessedKey(ctx context.Context, connectionID, sourceEntity string) (string, error) {
	const query = `SELECT connection_id, source_entity, last_key, updated_at
	FROM sync_cursors WHERE connection_id = $1 AND source_entity = $2`
	var cursor models.SyncCursor
	if err := r.db.GetContext(ctx, &cursor, query, connectionID, sourceEntity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get cursor (%s,%s): %w", connectionID, sourceEntity, err)
	}
	return cursor.LastKey, nil
}

// UpsertCursor advances the cursor after a successful batch commit.
func (r *CursorRepository) UpsertCursor(ctx context.Context, connectionID, sourceEntity, lastKey string) error {
	const query = `INSERT INTO sync_cursors (connection_id, source_entity, last_key, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (connection_id, source_entity) DO UPDATE SET
	last_key = EXCLUDED.last_key, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, connectionID, sourceEntity, lastKey, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert cursor (%s,%s): %w", connectionID, sourceEntity, err)
	}
	return nil
}
