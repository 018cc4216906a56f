package infra

import (
	"context"

	"access-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PromStatsStore expõe as decisões do rate limit como métricas Prometheus.
//
// A chave do cliente não vira label (cardinalidade); só outcome e rota.
type PromStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPromStatsStore(reg prometheus.Registerer) (*PromStatsStore, error) {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions by outcome and route",
		},
		[]string{"outcome", "route"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PromStatsStore{decisions: decisions}, nil
}

func (s *PromStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := routeLabel(ev)
	s.decisions.WithLabelValues(string(ev.Outcome), route).Inc()
	return nil
}
