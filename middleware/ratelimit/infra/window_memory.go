package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"access-gateway/middleware/ratelimit/domain"
)

// MemoryWindowStore guarda, por chave, o log ordenado de timestamps da janela.
//
// O log de cada chave nunca passa de Capacity+1 eventos, então Hit custa
// O(capacidade) mesmo com um cliente martelando a mesma chave. Um único
// mutex serializa Hit; não serve para múltiplas réplicas (use RedisWindowStore).
type MemoryWindowStore struct {
	mu           sync.Mutex
	entries      map[string]*windowEntry
	cleanupEvery time.Duration
}

type windowEntry struct {
	// events em ordem crescente.
	events []time.Time
	// depois de expiresAt nenhum evento da chave está na janela.
	expiresAt time.Time
}

type MemoryWindowOption func(*MemoryWindowStore)

func WithWindowCleanupEvery(d time.Duration) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries:      make(map[string]*windowEntry),
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hit implementa domain.WindowStore.
func (s *MemoryWindowStore) Hit(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.WindowState, error) {
	if err := ctx.Err(); err != nil {
		return domain.WindowState{}, err
	}
	cutoff := now.Add(-rule.Window)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[string(key)]
	if !ok {
		ent = &windowEntry{}
		s.entries[string(key)] = ent
	}

	ev := ent.events
	expired := sort.Search(len(ev), func(i int) bool { return !ev[i].Before(cutoff) })
	ev = ev[expired:]

	// chamadas concorrentes leem o relógio antes do lock e podem chegar fora de ordem
	at := sort.Search(len(ev), func(i int) bool { return ev[i].After(now) })
	ev = append(ev, time.Time{})
	copy(ev[at+1:], ev[at:])
	ev[at] = now

	if over := len(ev) - (rule.Capacity + 1); over > 0 {
		ev = ev[over:]
	}
	ent.events = ev
	if exp := now.Add(rule.Window); exp.After(ent.expiresAt) {
		ent.expiresAt = exp
	}

	return domain.WindowState{Count: len(ev), Oldest: ev[0]}, nil
}

// Len retorna quantas chaves estão em memória.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove chaves cuja janela já expirou em relação a now.
func (s *MemoryWindowStore) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, func() { s.Cleanup(time.Now()) })
}
