package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Paashik/MyIS-sub004/internal/models"
	appErrors "github.com/Paashik/MyIS-sub004/pkg/errors"
)

type permissionStore interface {
	GetPermissions(ctx context.Context, userID string) ([]string, error)
}

type permissionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// PermissionService resolves actor permission sets with a short-lived Redis
// cache in front of the users table, so revocations take effect within the
// TTL without a lookup on every workflow action.
type PermissionService struct {
	store  permissionStore
	cache  permissionCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewPermissionService constructs the provider.
func NewPermissionService(store permissionStore, cache permissionCache, ttl time.Duration, logger *zap.Logger) *PermissionService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{store: store, cache: cache, ttl: ttl, logger: logger}
}

// GetPermissionSet returns the codes held by an actor as a lookup set.
func (s *PermissionService) GetPermissionSet(ctx context.Context, actorID string) (models.PermissionSet, error) {
	key := "permissions:" + actorID

	var codes []string
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &codes); err == nil {
			return models.NewPermissionSet(codes), nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("permission cache read failed", zap.String("actor", actorID), zap.Error(err))
		}
	}

	codes, err := s.store.GetPermissions(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, codes, s.ttl); err != nil {
			s.logger.Warn("permission cache write failed", zap.String("actor", actorID), zap.Error(err))
		}
	}
	return models.NewPermissionSet(codes), nil
}
