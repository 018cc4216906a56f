package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"access-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript executa poda + registro + corte + contagem num único
// passo. Redis roda scripts de forma serializada, então duas chamadas
// concorrentes para a mesma chave nunca veem o mesmo contador.
//
// KEYS[1] = chave da janela (sorted set, score = unix ms)
// ARGV[1] = agora (ms), ARGV[2] = limite exclusivo de poda ("(" + agora-janela),
// ARGV[3] = janela (ms), ARGV[4] = último rank a remover (-(capacidade+2)),
// ARGV[5] = membro único, ARGV[6] = "1" para usar o relógio do Redis
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]
local bound = ARGV[2]
if ARGV[6] == '1' then
  local t = redis.call('TIME')
  local ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
  now = string.format('%d', ms)
  bound = string.format('(%d', ms - tonumber(ARGV[3]))
end
redis.call('ZREMRANGEBYSCORE', key, '-inf', bound)
redis.call('ZADD', key, now, ARGV[5])
redis.call('ZREMRANGEBYRANK', key, 0, ARGV[4])
local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
redis.call('PEXPIRE', key, ARGV[3])
return {count, oldest[2]}
`)

// RedisWindowStore implementa domain.WindowStore sobre Redis, compartilhado
// entre processos. Cada chave é um sorted set com TTL igual à janela e no
// máximo Capacity+1 membros.
type RedisWindowStore struct {
	rdb         redis.Scripter
	prefix      string
	serverClock bool
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithServerClock faz o script usar TIME do Redis em vez do relógio do
// processo. Com várias réplicas, o desvio de relógio entre elas deixa de
// podar ou preservar eventos errados. O `now` passado a Hit é ignorado.
func WithServerClock(enabled bool) RedisWindowOption {
	return func(s *RedisWindowStore) { s.serverClock = enabled }
}

func NewRedisWindowStore(rdb redis.Scripter, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}

// Hit implementa domain.WindowStore.
func (s *RedisWindowStore) Hit(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.WindowState, error) {
	windowMs := rule.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	clock := "0"
	if s.serverClock {
		clock = "1"
	}

	nowMs := now.UnixMilli()
	res, err := slidingWindowScript.Run(ctx, s.rdb,
		[]string{s.redisKey(key)},
		nowMs,
		"("+strconv.FormatInt(nowMs-windowMs, 10),
		windowMs,
		strconv.Itoa(-(rule.Capacity + 2)),
		uuid.NewString(),
		clock,
	).Slice()
	if err != nil {
		return domain.WindowState{}, fmt.Errorf("redis window hit: %w", err)
	}
	if len(res) != 2 {
		return domain.WindowState{}, fmt.Errorf("redis window hit: unexpected reply %v", res)
	}

	count, ok := res[0].(int64)
	if !ok {
		return domain.WindowState{}, fmt.Errorf("redis window hit: unexpected count %T", res[0])
	}
	oldestMs, err := parseScore(res[1])
	if err != nil {
		return domain.WindowState{}, fmt.Errorf("redis window hit: %w", err)
	}

	return domain.WindowState{
		Count:  int(count),
		Oldest: time.UnixMilli(oldestMs),
	}, nil
}

func parseScore(v any) (int64, error) {
	switch s := v.(type) {
	case string:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse score %q: %w", s, err)
		}
		return int64(f), nil
	case int64:
		return s, nil
	default:
		return 0, fmt.Errorf("unexpected score %T", v)
	}
}
