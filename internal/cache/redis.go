package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "carscout:deadlink:"

// RedisStore keeps dead links as expiring Redis keys, one per link, so
// several crawler processes share the same view.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to addr.
func NewRedisStore(addr string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), "", ttl, logger)
}

// NewRedisStoreWithClient uses an existing client. An empty prefix takes
// the default.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DeadLinkExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(link string) string {
	return s.prefix + link
}

// IsDead reports whether link is marked. Redis errors are logged and the
// link is treated as alive so a flaky cache never hides listings.
func (s *RedisStore) IsDead(ctx context.Context, link string) bool {
	link = strings.TrimSpace(link)
	if link == "" {
		return true
	}
	n, err := s.client.Exists(ctx, s.key(link)).Result()
	if err != nil {
		s.logger.Warn("dead link lookup failed", slog.String("url", link), slog.String("error", err.Error()))
		return false
	}
	return n > 0
}

// MarkDead stores links with the configured TTL.
func (s *RedisStore) MarkDead(ctx context.Context, links ...string) error {
	now := time.Now()
	pipe := s.client.Pipeline()
	queued := 0
	for _, l := range links {
		if l = strings.TrimSpace(l); l == "" {
			continue
		}
		payload, err := json.Marshal(DeadLink{URL: l, MarkedAt: now})
		if err != nil {
			return err
		}
		pipe.Set(ctx, s.key(l), payload, s.ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Remove deletes links.
func (s *RedisStore) Remove(ctx context.Context, links ...string) error {
	keys := make([]string, 0, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			keys = append(keys, s.key(l))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// List scans every marked link.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
