package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"access-gateway/middleware/authz/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisPrincipalLoader lê snapshots JSON em "<prefix>:<subject>".
//
// Cargas concorrentes do mesmo subject são agrupadas (singleflight).
type RedisPrincipalLoader struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

type RedisLoaderOption func(*RedisPrincipalLoader)

func WithPrincipalPrefix(prefix string) RedisLoaderOption {
	return func(l *RedisPrincipalLoader) { l.prefix = strings.Trim(prefix, ":") }
}

// WithPrincipalTTL define o TTL usado em Put. 0 = sem expiração.
func WithPrincipalTTL(d time.Duration) RedisLoaderOption {
	return func(l *RedisPrincipalLoader) { l.ttl = d }
}

func NewRedisPrincipalLoader(rdb redis.Cmdable, opts ...RedisLoaderOption) *RedisPrincipalLoader {
	l := &RedisPrincipalLoader{rdb: rdb, prefix: "principal"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisPrincipalLoader) key(subject string) string {
	return l.prefix + ":" + subject
}

// Load devolve domain.ErrNoPrincipal quando não há snapshot para o subject.
func (l *RedisPrincipalLoader) Load(ctx context.Context, subject string) (domain.PrincipalSnapshot, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.PrincipalSnapshot{}, domain.ErrNoPrincipal
	}

	v, err, _ := l.group.Do(subject, func() (any, error) {
		raw, err := l.rdb.Get(ctx, l.key(subject)).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.PrincipalSnapshot{}, domain.ErrNoPrincipal
		}
		if err != nil {
			return domain.PrincipalSnapshot{}, fmt.Errorf("load principal: %w", err)
		}
		var p domain.PrincipalSnapshot
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.PrincipalSnapshot{}, fmt.Errorf("%w: %w", domain.ErrInvalidSnapshot, err)
		}
		if p.Subject == "" {
			p.Subject = subject
		}
		return p, nil
	})
	if err != nil {
		return domain.PrincipalSnapshot{}, err
	}
	return v.(domain.PrincipalSnapshot), nil
}

// Put publica um snapshot (usado pelo seed e pelos testes).
func (l *RedisPrincipalLoader) Put(ctx context.Context, p domain.PrincipalSnapshot) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return l.rdb.Set(ctx, l.key(p.Subject), raw, l.ttl).Err()
}
