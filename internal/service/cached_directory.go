package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

const outletScopeKeyPrefix = "hierarchy:outlets:"

// CachedDirectory fronts OutletsFor with Redis. It is meant for bulk list
// scoping only; point access checks must use the uncached directory.
type CachedDirectory struct {
	HierarchyDirectory
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewCachedDirectory wraps inner. A nil client disables caching.
func NewCachedDirectory(inner HierarchyDirectory, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDirectory{HierarchyDirectory: inner, client: client, ttl: ttl, logger: logger}
}

// OutletsFor serves the scope from Redis when present and collapses
// concurrent misses for the same actor into one directory lookup.
func (d *CachedDirectory) OutletsFor(ctx context.Context, actor domain.Actor) (OutletSet, error) {
	if d.client == nil || d.ttl <= 0 || actor.Role.Unrestricted() || actor.Role == domain.RoleRO {
		return d.HierarchyDirectory.OutletsFor(ctx, actor)
	}
	key := outletScopeKey(actor)

	raw, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var set OutletSet
		if jsonErr := json.Unmarshal(raw, &set); jsonErr == nil {
			return set, nil
		}
		d.logger.Warn("discarding unreadable outlet scope cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		d.logger.Warn("outlet scope cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		set, err := d.HierarchyDirectory.OutletsFor(ctx, actor)
		if err != nil {
			return OutletSet{}, err
		}
		if payload, err := json.Marshal(set); err == nil {
			if err := d.client.Set(ctx, key, payload, d.ttl).Err(); err != nil {
				d.logger.Warn("outlet scope cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return set, nil
	})
	if err != nil {
		return OutletSet{}, err
	}
	return v.(OutletSet), nil
}

func outletScopeKey(actor domain.Actor) string {
	return fmt.Sprintf("%s%s:%s", outletScopeKeyPrefix, actor.Role, actor.ID)
}
