package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	grantCachePrefix      = "rbac:grants:"
	grantGenerationPrefix = "rbac:grants:gen:"
)

// ErrStaleGrants reports a Set dropped because the consultant's grants were
// invalidated while the list was being loaded.
var ErrStaleGrants = errors.New("rbac: grant list invalidated during load")

// GrantCache stores consultant grant lists in Redis.
type GrantCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGrantCache builds a cache with the given entry lifetime.
func NewGrantCache(client *redis.Client, ttl time.Duration) *GrantCache {
	return &GrantCache{client: client, ttl: ttl}
}

// Get returns the cached grants. The second result is false on a miss.
func (c *GrantCache) Get(ctx context.Context, consultantID string) ([]Grant, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, grantCachePrefix+consultantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var grants []Grant
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, false, err
	}
	return grants, true, nil
}

// Generation returns the consultant's invalidation counter. It is zero until
// the first Invalidate.
func (c *GrantCache) Generation(ctx context.Context, consultantID string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, grantGenerationPrefix+consultantID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set caches grants that were loaded while the generation was gen. An empty list
// is cached too so that locked-out consultants do not hit the database on every
// request. The write is refused with ErrStaleGrants once Invalidate has run.
func (c *GrantCache) Set(ctx context.Context, consultantID string, gen int64, grants []Grant) error {
	if c == nil || c.client == nil {
		return nil
	}
	if grants == nil {
		grants = []Grant{}
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		return err
	}
	genKey := grantGenerationPrefix + consultantID
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return ErrStaleGrants
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, grantCachePrefix+consultantID, raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleGrants
	}
	return err
}

// Invalidate bumps the consultant's generation and drops the cached entry.
func (c *GrantCache) Invalidate(ctx context.Context, consultantID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, grantGenerationPrefix+consultantID)
		pipe.Del(ctx, grantCachePrefix+consultantID)
		return nil
	})
	return err
}
