package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"access-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega decisões do limiter em hashes Redis. Cada hash
// tem um campo por Outcome (allowed/denied/degraded).
//
// Layout (prefix padrão "ratelimit:stats"):
//
//	<prefix>:total                 cumulativo, sem TTL
//	<prefix>:minute:<YYYYMMDDhhmm> bucket por minuto, com TTL
//	<prefix>:route                 campo "<METHOD> <path>:<outcome>"
//	<prefix>:key:<key>             por chave, só com trackKeys
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix    string
	ttl       time.Duration
	perMinute bool
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithStatsTTL vale para buckets por minuto e por chave.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsPerMinute(enabled bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.perMinute = enabled }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "ratelimit:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil || ev.Outcome == "" {
		return nil
	}
	outcome := string(ev.Outcome)

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", outcome, 1)

	if s.perMinute {
		s.incrExpiring(ctx, pipe, fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")), outcome)
	}

	if route := routeLabel(ev); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+outcome, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			s.incrExpiring(ctx, pipe, s.prefix+":key:"+k, outcome)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê o hash cumulativo.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("stats field %s: %w", field, err)
		}
		switch domain.Outcome(field) {
		case domain.OutcomeAllowed:
			c.Allowed = n
		case domain.OutcomeDenied:
			c.Denied = n
		case domain.OutcomeDegraded:
			c.Degraded = n
		}
	}
	return c, nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func routeLabel(ev domain.StatsEvent) string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
}
