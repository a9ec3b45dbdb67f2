package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// LinkRepository persists external entity links.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository constructs the repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

const linkColumns = `id, entity_type, entity_id, connection_id, external_key, synced_at, updated_at`

// GetByExternalKey returns every link recorded for one external key under a
// connection. Ordering is left to the resolver's comparator.
func (r *LinkRepository) GetByExternalKey(ctx context.Context, connectionID, entityType, externalKey string) ([]models.ExternalEntityLink, error) {
	query := `SELECT ` + linkColumns + ` FROM external_links
	WHERE connection_id = $1 AND entity_type = $2 AND external_key = $3`
	var links []models.ExternalEntityLink
	if err := r.db.SelectContext(ctx, &links, query, connectionID, entityType, externalKey); err != nil {
		return nil, fmt.Errorf("get links for key %s: %w", externalKey, err)
	}
	return links, nil
}

// GetByEntity returns every link accumulated for one local entity.
func (r *LinkRepository) GetByEntity(ctx context.Context, entityType, entityID string) ([]models.ExternalEntityLink, error) {
	query := `SELECT ` + linkColumns + ` FROM external_links
	WHERE entity_type = $1 AND entity_id = $2`
	var links []models.ExternalEntityLink
	if err := r.db.SelectContext(ctx, &links, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("get links for entity %s: %w", entityID, err)
	}
	return links, nil
}

// Create records a new link. Re-linking the same entity later adds a new
// row; the latest link always wins by (synced_at, updated_at).
func (r *LinkRepository) Create(ctx context.Context, link *models.ExternalEntityLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.UpdatedAt.IsZero() {
		link.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO external_links (id, entity_type, entity_id, connection_id, external_key, synced_at, updated_at)
	VALUES (:id, :entity_type, :entity_id, :connection_id, :external_key, :synced_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("create link for %s: %w", link.ExternalKey, err)
	}
	return nil
}

// TouchSynced stamps the link's synced_at after a successful apply.
func (r *LinkRepository) TouchSynced(ctx context.Context, id string, syncedAt time.Time) error {
	const query = `UPDATE external_links SET synced_at = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, syncedAt, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch link %s: %w", id, err)
	}
	return nil
}
