package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store marks keys as seen in Redis for a bounded TTL.
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem"}
}

// Key joins the parts into a namespaced key. Empty parts are kept so that
// positional meaning is preserved.
func (s *Store) Key(scope string, parts ...string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, strings.Join(parts, ":"))
}

// Seen reports whether key was already claimed. A false result claims it.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget releases a claimed key so the next delivery is processed again.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
