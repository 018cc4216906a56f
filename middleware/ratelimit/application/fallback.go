package application

import "access-gateway/middleware/ratelimit/domain"

// LocalGuard segura o tráfego em modo fail-open com um bucket por chave,
// mantido só neste processo. Store nil ou limiter nil admitem tudo.
type LocalGuard struct {
	Store domain.LimiterStore
}

func (g LocalGuard) Admit(key domain.Key) bool {
	if g.Store == nil {
		return true
	}
	lim := g.Store.Get(key)
	if lim == nil {
		return true
	}
	return lim.Allow()
}
