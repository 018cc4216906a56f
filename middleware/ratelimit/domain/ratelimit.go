package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Key string

var (
	// ErrStoreUnavailable classifica falhas de infraestrutura do store
	// (rede, timeout, script). Nunca é usado para um "deny" normal.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrInvalidRule é retornado na construção do limiter quando a regra é inválida.
	ErrInvalidRule = errors.New("ratelimit: invalid rule")
)

// Rule define capacidade (eventos) e duração da janela deslizante.
type Rule struct {
	Capacity int
	Window   time.Duration
}

func (r Rule) Validate() error {
	if r.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidRule, r.Capacity)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidRule, r.Window)
	}
	return nil
}

// WindowState é o que o store devolve após registrar um evento.
//
// Count inclui o evento recém registrado e satura em Capacity+1: além disso
// a decisão não muda. Oldest é o evento mais antigo ainda guardado na janela.
type WindowState struct {
	Count  int
	Oldest time.Time
}

// WindowStore é o contador compartilhado por chave.
//
// Hit deve ser atômico por chave: descartar eventos fora de
// [now-rule.Window, now], registrar o evento atual, guardar no máximo
// rule.Capacity+1 eventos (os mais recentes) e contar, tudo numa única
// operação. A implementação deve expirar chaves inativas após a janela.
type WindowStore interface {
	Hit(ctx context.Context, key Key, rule Rule, now time.Time) (WindowState, error)
}

// Verdict é a decisão do limiter com os metadados de cota.
type Verdict struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded indica que o store falhou e a decisão veio da FailurePolicy.
	Degraded bool
}

// RetryAfter é quanto falta até ResetAt (arredondado para cima em segundos, mínimo 1s).
func (v Verdict) RetryAfter(now time.Time) time.Duration {
	d := v.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// FailurePolicy diz o que fazer quando o store está indisponível.
type FailurePolicy string

const (
	// FailOpen favorece disponibilidade (permite).
	FailOpen FailurePolicy = "open"
	// FailClosed favorece a garantia (nega).
	FailClosed FailurePolicy = "closed"
)

// UnmarshalText permite decodificar a política a partir de env/config.
func (p *FailurePolicy) UnmarshalText(b []byte) error {
	switch v := FailurePolicy(strings.ToLower(strings.TrimSpace(string(b)))); v {
	case FailOpen, FailClosed:
		*p = v
		return nil
	default:
		return fmt.Errorf("ratelimit: invalid failure policy %q (expected open|closed)", string(b))
	}
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado pelo fallback local (token bucket) no modo fail-open.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
type LimiterStore interface {
	Get(Key) Limiter
}
