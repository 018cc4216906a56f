package infra

import (
	"fmt"
	"sync"
	"time"

	"access-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// LocalBuckets aproxima a regra da janela com um token bucket por chave,
// só neste processo. É o que segura o tráfego em fail-open enquanto o store
// compartilhado está fora.
//
// O bucket recarrega Capacity tokens por Window (com rajada Capacity),
// multiplicados por share: com N réplicas atrás do mesmo balanceador, share
// 1/N evita que o degradado admita N vezes a cota.
type LocalBuckets struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rule    domain.Rule
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
	now      func() time.Time
}

func (b *bucket) Allow() bool { return b.lim.AllowN(b.now(), 1) }

type LocalBucketsOption func(*LocalBuckets)

// WithBucketShare define a fração da regra admitida por este processo (0 < share <= 1).
func WithBucketShare(share float64) LocalBucketsOption {
	return func(b *LocalBuckets) {
		b.limit = rate.Limit(float64(b.limit) * share)
		burst := int(float64(b.burst) * share)
		if burst < 1 {
			burst = 1
		}
		b.burst = burst
	}
}

func WithBucketClock(now func() time.Time) LocalBucketsOption {
	return func(b *LocalBuckets) { b.now = now }
}

func NewLocalBuckets(rule domain.Rule, opts ...LocalBucketsOption) (*LocalBuckets, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	b := &LocalBuckets{
		buckets: make(map[string]*bucket),
		rule:    rule,
		limit:   rate.Limit(float64(rule.Capacity) / rule.Window.Seconds()),
		burst:   rule.Capacity,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.limit <= 0 {
		return nil, fmt.Errorf("%w: local bucket share must be > 0", domain.ErrInvalidRule)
	}
	return b, nil
}

// Get implementa domain.LimiterStore.
func (b *LocalBuckets) Get(key domain.Key) domain.Limiter {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if bk, ok := b.buckets[string(key)]; ok {
		bk.lastSeen = now
		return bk
	}
	bk := &bucket{lim: rate.NewLimiter(b.limit, b.burst), lastSeen: now, now: b.now}
	b.buckets[string(key)] = bk
	return bk
}

// Len retorna quantas chaves têm bucket.
func (b *LocalBuckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

// Cleanup descarta buckets parados há mais de uma janela: nesse ponto já
// estariam cheios de novo, então recriar dá o mesmo resultado.
func (b *LocalBuckets) Cleanup() {
	cutoff := b.now().Add(-b.rule.Window)

	b.mu.Lock()
	defer b.mu.Unlock()

	for k, bk := range b.buckets {
		if bk.lastSeen.Before(cutoff) {
			delete(b.buckets, k)
		}
	}
}

// StartJanitor limpa buckets parados uma vez por janela até ctx encerrar.
func (b *LocalBuckets) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, b.rule.Window, b.Cleanup)
}
