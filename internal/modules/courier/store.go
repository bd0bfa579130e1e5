// README: Courier store backed by Redis GEO and sets.
package courier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bento/internal/geo"
	"bento/internal/types"
)

const (
	courierGeoKey     = "courier:geo"
	availableKey      = "courier:available"
	orderGeoKey       = "orders:pickup:geo"
	rejectedKeyPrefix = "courier:%s:rejected"
	// TTL for reject sets (orders resolve well within a day).
	rejectTTL = 24 * time.Hour
)

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	if available {
		return s.redis.SAdd(ctx, availableKey, string(id)).Err()
	}
	pipe := s.redis.Pipeline()
	pipe.SRem(ctx, availableKey, string(id))
	pipe.ZRem(ctx, courierGeoKey, string(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) IsAvailable(ctx context.Context, id types.ID) (bool, error) {
	return s.redis.SIsMember(ctx, availableKey, string(id)).Result()
}

func (s *RedisStore) AvailableCouriers(ctx context.Context) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, availableKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func (s *RedisStore) UpsertCourierPosition(ctx context.Context, id types.ID, pos geo.Coordinate) error {
	return s.redis.GeoAdd(ctx, courierGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *RedisStore) AddOrderPickup(ctx context.Context, orderID types.ID, pos geo.Coordinate) error {
	return s.redis.GeoAdd(ctx, orderGeoKey, &redis.GeoLocation{
		Name:      string(orderID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *RedisStore) RemoveOrderPickup(ctx context.Context, orderID types.ID) error {
	return s.redis.ZRem(ctx, orderGeoKey, string(orderID)).Err()
}

func (s *RedisStore) NearbyOrderIDs(ctx context.Context, pos geo.Coordinate, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, orderGeoKey, &redis.GeoSearchQuery{
		Longitude:  pos.Lng,
		Latitude:   pos.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func (s *RedisStore) MarkRejected(ctx context.Context, courierID, orderID types.ID) error {
	key := rejectedKey(courierID)
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, key, string(orderID))
	pipe.Expire(ctx, key, rejectTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) RejectedOrders(ctx context.Context, courierID types.ID) (map[types.ID]bool, error) {
	members, err := s.redis.SMembers(ctx, rejectedKey(courierID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]bool, len(members))
	for _, m := range members {
		out[types.ID(m)] = true
	}
	return out, nil
}

func rejectedKey(courierID types.ID) string {
	return fmt.Sprintf(rejectedKeyPrefix, string(courierID))
}
