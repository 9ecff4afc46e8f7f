package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/service-order-api/internal/models"
	appErrors "github.com/noah-isme/service-order-api/pkg/errors"
)

const catalogCacheKey = "catalog:snapshot"

type catalogSource interface {
	LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error)
}

// CatalogService hands out read-only catalog snapshots, cached when a cache is configured.
type CatalogService struct {
	source catalogSource
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService constructs the service. cache may be nil.
func NewCatalogService(source catalogSource, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{source: source, cache: cache, ttl: ttl, logger: logger}
}

// Snapshot returns the current catalog. A cache failure falls back to the source.
func (s *CatalogService) Snapshot(ctx context.Context) (*models.CatalogSnapshot, error) {
	var cached models.CatalogSnapshot
	if hit, err := s.cache.Get(ctx, catalogCacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	snapshot, err := s.source.LoadSnapshot(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load catalog")
	}
	if err := s.cache.Set(ctx, catalogCacheKey, snapshot, s.ttl); err != nil {
		s.logger.Debug("catalog snapshot not cached", zap.Error(err))
	}
	return snapshot, nil
}
