package domain

import (
	"context"
	"time"
)

// Outcome é o resultado registrado em estatísticas.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeDegraded Outcome = "degraded"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Outcome Outcome

	Method string
	Path   string

	At time.Time
}

// OutcomeOf traduz um Verdict para o Outcome de estatística.
func OutcomeOf(v Verdict) Outcome {
	switch {
	case v.Degraded:
		return OutcomeDegraded
	case v.Allowed:
		return OutcomeAllowed
	default:
		return OutcomeDenied
	}
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
