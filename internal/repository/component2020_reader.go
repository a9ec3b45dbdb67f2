package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

// Component2020Reader reads external records from the Component2020 staging
// schema (the Access source exported into Postgres tables by a nightly job).
// Both read paths are keyset-paged on external_key, whose ordering the
// external source defines.
type Component2020Reader struct {
	db *sqlx.DB
}

// NewComponent2020Reader constructs the reader.
func NewComponent2020Reader(db *sqlx.DB) *Component2020Reader {
	return &Component2020Reader{db: db}
}

func stagingTable(scope models.SyncScope) (string, error) {
	switch scope {
	case models.SyncScopeItems:
		return "staging_items", nil
	case models.SyncScopeComponents:
		return "staging_components", nil
	case models.SyncScopeCounterparties:
		return "staging_counterparties", nil
	default:
		return "", fmt.Errorf("unknown sync scope %q", scope)
	}
}

const recordColumns = `external_key, code, name, description, unit, manufacturer, updated_at, deleted_at`

// ReadSnapshot returns the next page of the full snapshot after the given
// key. An empty afterKey starts from the beginning.
func (r *Component2020Reader) ReadSnapshot(ctx context.Context, scope models.SyncScope, afterKey string, limit int) ([]models.ExternalRecord, error) {
	return r.readPage(ctx, scope, afterKey, limit)
}

// ReadDelta returns the next page of records with keys greater than the
// cursor. The staging export appends monotonically increasing keys, so key
// order doubles as arrival order.
func (r *Component2020Reader) ReadDelta(ctx context.Context, scope models.SyncScope, sinceKey string, limit int) ([]models.ExternalRecord, error) {
	return r.readPage(ctx, scope, sinceKey, limit)
}

func (r *Component2020Reader) readPage(ctx context.Context, scope models.SyncScope, afterKey string, limit int) ([]models.ExternalRecord, error) {
	table, err := stagingTable(scope)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE external_key > $1 ORDER BY external_key LIMIT %d`,
		recordColumns, table, limit)

	var records []models.ExternalRecord
	if err := r.db.SelectContext(ctx, &records, query, afterKey); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, appErrors.Wrap(err, appErrors.ErrExternalSourceUnreachable.Code,
			appErrors.ErrExternalSourceUnreachable.Status, "read component2020 staging")
	}
	return records, nil
}
