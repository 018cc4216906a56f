package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"access-gateway/middleware/ratelimit/infra"
)

// StatsReader lê os contadores agregados (MemoryStatsStore, RedisStatsStore).
type StatsReader interface {
	Totals(ctx context.Context) (infra.Counters, error)
}

type routeCounters interface {
	ByRoute() map[string]infra.Counters
}

type statsBody struct {
	Total  infra.Counters            `json:"total"`
	Routes map[string]infra.Counters `json:"routes,omitempty"`
}

// StatsHandler serve os contadores em JSON. Rotas entram só quando o store
// as guarda em memória.
func StatsHandler(src StatsReader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		total, err := src.Totals(r.Context())
		if err != nil {
			logger.Warn("rate limit stats read", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		body := statsBody{Total: total}
		if rc, ok := src.(routeCounters); ok {
			body.Routes = rc.ByRoute()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}
