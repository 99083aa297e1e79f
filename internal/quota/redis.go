package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/IskanderBlue/CodeChronicle/pkg/redis"
)

// RedisStore keeps counters in Redis. Each counter expires ttl after its
// first increment.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(identity string, day time.Time) string {
	return fmt.Sprintf("quota:%s:%s", DayKey(day), identity)
}

func (s *RedisStore) IncrementIfBelow(ctx context.Context, identity string, day time.Time, limit int) (int, bool, error) {
	n, ok, err := s.client.IncrBelow(ctx, redisKey(identity, day), int64(limit), s.ttl)
	if err != nil {
		return 0, false, err
	}
	return int(n), ok, nil
}

func (s *RedisStore) Increment(ctx context.Context, identity string, day time.Time) (int, error) {
	n, err := s.client.IncrWithTTL(ctx, redisKey(identity, day), s.ttl)
	return int(n), err
}

func (s *RedisStore) Usage(ctx context.Context, identity string, day time.Time) (int, error) {
	n, err := s.client.GetInt(ctx, redisKey(identity, day))
	return int(n), err
}

// PurgeDay deletes every counter of day.
func (s *RedisStore) PurgeDay(ctx context.Context, day time.Time) (int64, error) {
	return s.client.FlushByPattern(ctx, fmt.Sprintf("quota:%s:*", DayKey(day)))
}

// PurgeBefore deletes the counters of the days before day that can still
// exist. Counters older than the key TTL have already expired.
func (s *RedisStore) PurgeBefore(ctx context.Context, day time.Time) (int64, error) {
	days := int(s.ttl/(24*time.Hour)) + 1
	var total int64
	for i := 1; i <= days; i++ {
		n, err := s.PurgeDay(ctx, day.AddDate(0, 0, -i))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
