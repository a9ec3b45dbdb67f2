package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// UserRepository persists users and audit trail records.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, login, password_hash, full_name, permissions, active, last_login, created_at, updated_at`

// FindByLogin fetches a user by login.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE login = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, login); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID fetches a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetPermissions returns the permission codes held by a user.
func (r *UserRepository) GetPermissions(ctx context.Context, userID string) ([]string, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get permissions for %s: %w", userID, err)
	}
	return []string(user.Permissions), nil
}

// UpdateLastLogin stamps the user's last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, ts, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update last login for %s: %w", id, err)
	}
	return nil
}

// CreateAuditLog inserts an audit trail record.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_log (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
	VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
