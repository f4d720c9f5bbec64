package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SortedSetClient is the part of redis.UniversalClient the registry uses.
type SortedSetClient interface {
	ZAddNX(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// TenantRegistry keeps tenant ids in a sorted set scored by the time they
// were added, so listing returns them in registration order. It satisfies
// tenancy.Provider and reads the set on every call: ids added by any
// process are valid immediately.
type TenantRegistry struct {
	client SortedSetClient
	key    string
	now    func() time.Time
}

func NewTenantRegistry(client SortedSetClient, key string) *TenantRegistry {
	return &TenantRegistry{client: client, key: key, now: time.Now}
}

// Tenants implements tenancy.Provider.
func (r *TenantRegistry) Tenants(ctx context.Context) ([]string, error) {
	ids, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tenants from %s: %w", r.key, err)
	}
	return ids, nil
}

// Add registers ids. Already registered ids keep their position.
func (r *TenantRegistry) Add(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	score := float64(r.now().UnixMicro())
	members := make([]redis.Z, len(ids))
	for i, id := range ids {
		if id == "" {
			return ErrEmptyTenantID
		}
		// Offset keeps argument order among ids added together.
		members[i] = redis.Z{Score: score + float64(i), Member: id}
	}
	if err := r.client.ZAddNX(ctx, r.key, members...).Err(); err != nil {
		return fmt.Errorf("add tenants to %s: %w", r.key, err)
	}
	return nil
}

// Remove unregisters id. Removing an unknown id is not an error.
func (r *TenantRegistry) Remove(ctx context.Context, id string) error {
	if err := r.client.ZRem(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("remove tenant from %s: %w", r.key, err)
	}
	return nil
}
