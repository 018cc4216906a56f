package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"access-gateway/middleware/ratelimit/domain"
)

const defaultStoreTimeout = 250 * time.Millisecond

// SlidingWindowLimiter decide allow/deny por chave numa janela deslizante.
//
// A atomicidade fica no store (um único Hit por chamada); o limiter apenas
// interpreta o estado devolvido e aplica a FailurePolicy quando o store falha.
type SlidingWindowLimiter struct {
	store        domain.WindowStore
	rule         domain.Rule
	policy       domain.FailurePolicy
	storeTimeout time.Duration
	fallback     LocalGuard
	now          func() time.Time
	logger       *slog.Logger
}

type LimiterOption func(*SlidingWindowLimiter)

// WithFailurePolicy define o comportamento com store indisponível (padrão: closed).
func WithFailurePolicy(p domain.FailurePolicy) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.policy = p }
}

// WithStoreTimeout limita quanto tempo uma chamada ao store pode levar.
func WithStoreTimeout(d time.Duration) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.storeTimeout = d }
}

// WithFallback limita o tráfego em modo fail-open com um limiter local.
// Sem fallback, fail-open permite tudo enquanto o store estiver fora.
func WithFallback(store domain.LimiterStore) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.fallback = LocalGuard{Store: store} }
}

func WithClock(now func() time.Time) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

func WithLogger(logger *slog.Logger) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.logger = logger }
}

// NewSlidingWindowLimiter valida a regra e a política na construção.
func NewSlidingWindowLimiter(store domain.WindowStore, rule domain.Rule, opts ...LimiterOption) (*SlidingWindowLimiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	l := &SlidingWindowLimiter{
		store:        store,
		rule:         rule,
		policy:       domain.FailClosed,
		storeTimeout: defaultStoreTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	switch l.policy {
	case domain.FailOpen, domain.FailClosed:
	default:
		return nil, fmt.Errorf("%w: unknown failure policy %q", domain.ErrInvalidRule, l.policy)
	}
	if l.storeTimeout <= 0 {
		return nil, fmt.Errorf("%w: store timeout must be > 0", domain.ErrInvalidRule)
	}
	return l, nil
}

func (l *SlidingWindowLimiter) Rule() domain.Rule            { return l.rule }
func (l *SlidingWindowLimiter) Policy() domain.FailurePolicy { return l.policy }

// Check registra um evento para key e devolve o veredito.
//
// Com store indisponível (erro ou timeout) retorna um Verdict com
// Degraded=true decidido pela política, junto de um erro que satisfaz
// errors.Is(err, domain.ErrStoreUnavailable). O chamador sempre recebe um
// Verdict utilizável.
func (l *SlidingWindowLimiter) Check(ctx context.Context, key domain.Key) (domain.Verdict, error) {
	now := l.now()

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	state, err := l.store.Hit(storeCtx, key, l.rule, now)
	if err != nil {
		return l.degraded(key, now, err)
	}

	count := state.Count
	remaining := l.rule.Capacity - count
	if remaining < 0 {
		remaining = 0
	}
	oldest := state.Oldest
	if oldest.IsZero() || oldest.After(now) {
		oldest = now
	}
	return domain.Verdict{
		Allowed:   count <= l.rule.Capacity,
		Limit:     l.rule.Capacity,
		Remaining: remaining,
		ResetAt:   oldest.Add(l.rule.Window),
	}, nil
}

func (l *SlidingWindowLimiter) degraded(key domain.Key, now time.Time, cause error) (domain.Verdict, error) {
	allowed := l.policy == domain.FailOpen
	if allowed && l.fallback.Store != nil {
		allowed = l.fallback.Admit(key)
	}

	l.logger.Warn("rate limit store unavailable",
		slog.String("policy", string(l.policy)),
		slog.Bool("allowed", allowed),
		slog.String("key", string(key)),
		slog.Any("error", cause),
	)

	return domain.Verdict{
		Allowed:   allowed,
		Limit:     l.rule.Capacity,
		Remaining: 0,
		ResetAt:   now.Add(l.rule.Window),
		Degraded:  true,
	}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, cause)
}
