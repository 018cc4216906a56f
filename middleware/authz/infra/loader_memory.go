package infra

import (
	"context"
	"sync"

	"access-gateway/middleware/authz/domain"
)

// MemoryPrincipalLoader guarda snapshots em memória. Útil em testes e no
// example-server.
type MemoryPrincipalLoader struct {
	mu         sync.RWMutex
	principals map[string]domain.PrincipalSnapshot
}

func NewMemoryPrincipalLoader(ps ...domain.PrincipalSnapshot) *MemoryPrincipalLoader {
	l := &MemoryPrincipalLoader{principals: make(map[string]domain.PrincipalSnapshot, len(ps))}
	for _, p := range ps {
		l.principals[p.Subject] = p
	}
	return l
}

func (l *MemoryPrincipalLoader) Load(_ context.Context, subject string) (domain.PrincipalSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.principals[subject]
	if !ok {
		return domain.PrincipalSnapshot{}, domain.ErrNoPrincipal
	}
	return p, nil
}

func (l *MemoryPrincipalLoader) Put(_ context.Context, p domain.PrincipalSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.principals[p.Subject] = p
	return nil
}
