package services

import (
	"context"
	"time"

	"tripfund/internal/models"
	"tripfund/internal/store"
)

const (
	configKeyPrefix = "tripfund:config:"
	configCacheTTL  = 5 * time.Minute
)

// CachedStore decorates a Store with a Redis read cache for the trip
// configuration. The configuration is nearly immutable (the only mutation is
// the one-way card attach, which invalidates), so it caches well; ledger
// reads and Snapshot stay uncached because the threshold must always be
// recomputed from fresh rows.
type CachedStore struct {
	store.Store
	cache *RedisCache
}

func NewCachedStore(s store.Store, cache *RedisCache) *CachedStore {
	return &CachedStore{Store: s, cache: cache}
}

func configKey(tripID string) string {
	return configKeyPrefix + tripID
}

func (s *CachedStore) GetConfiguration(ctx context.Context, tripID string) (*models.PaymentConfig, error) {
	return GetOrSet(s.cache, ctx, configKey(tripID), configCacheTTL, func() (*models.PaymentConfig, error) {
		return s.Store.GetConfiguration(ctx, tripID)
	})
}

func (s *CachedStore) CreateConfiguration(ctx context.Context, cfg *models.PaymentConfig) error {
	if err := s.Store.CreateConfiguration(ctx, cfg); err != nil {
		return err
	}
	// A stale negative is impossible (misses fall through), but drop any
	// entry left by a concurrent read anyway.
	_ = s.cache.Delete(ctx, configKey(cfg.TripID))
	return nil
}

func (s *CachedStore) AttachVirtualCard(ctx context.Context, tripID string, card store.CardDetails) (*models.PaymentConfig, error) {
	cfg, err := s.Store.AttachVirtualCard(ctx, tripID, card)
	if err != nil && cfg == nil {
		return nil, err
	}
	_ = s.cache.Delete(ctx, configKey(tripID))
	return cfg, err
}
