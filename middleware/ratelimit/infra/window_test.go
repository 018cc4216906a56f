package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"access-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// windowStores devolve as duas implementações para rodar os mesmos cenários.
func windowStores(t *testing.T) map[string]domain.WindowStore {
	_, rdb := newTestRedis(t)
	return map[string]domain.WindowStore{
		"memory": NewMemoryWindowStore(),
		"redis":  NewRedisWindowStore(rdb),
	}
}

func TestWindowStore_CountsWithinRollingWindow(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	rule := domain.Rule{Capacity: 10, Window: 10 * time.Second}
	for name, store := range windowStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				st, err := store.Hit(ctx, "k", rule, base.Add(time.Duration(i)*time.Second))
				require.NoError(t, err)
				require.Equal(t, i+1, st.Count)
				require.True(t, st.Oldest.Equal(base), "oldest=%s", st.Oldest)
			}

			// janela [1s+1ms, 11s+1ms]: base e base+1s saíram
			st, err := store.Hit(ctx, "k", rule, base.Add(11*time.Second+time.Millisecond))
			require.NoError(t, err)
			require.Equal(t, 2, st.Count)
			require.True(t, st.Oldest.Equal(base.Add(2*time.Second)), "oldest=%s", st.Oldest)
		})
	}
}

func TestWindowStore_KeepsAtMostCapacityPlusOne(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	rule := domain.Rule{Capacity: 3, Window: time.Minute}
	for name, store := range windowStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var st domain.WindowState
			var err error
			for i := 0; i < 10; i++ {
				st, err = store.Hit(ctx, "k", rule, base.Add(time.Duration(i)*time.Second))
				require.NoError(t, err)
			}
			require.Equal(t, 4, st.Count)
			// sobram os 4 mais recentes: 6s..9s
			require.True(t, st.Oldest.Equal(base.Add(6*time.Second)), "oldest=%s", st.Oldest)

			// 9s é o último guardado; em 9s+janela+1ms tudo expirou
			st, err = store.Hit(ctx, "k", rule, base.Add(9*time.Second+time.Minute+time.Millisecond))
			require.NoError(t, err)
			require.Equal(t, 1, st.Count)
		})
	}
}

func TestWindowStore_BoundaryIsInclusive(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	for name, store := range windowStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rule := domain.Rule{Capacity: 5, Window: time.Minute}
			_, err := store.Hit(ctx, "k", rule, base)
			require.NoError(t, err)

			st, err := store.Hit(ctx, "k", rule, base.Add(time.Minute))
			require.NoError(t, err)
			require.Equal(t, 2, st.Count)
		})
	}
}

func TestWindowStore_ConcurrentHitsAreNotLost(t *testing.T) {
	for name, store := range windowStores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 40
			now := time.Now()
			var wg sync.WaitGroup
			counts := make(chan int, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					st, err := store.Hit(context.Background(), "hot", domain.Rule{Capacity: 1000, Window: time.Minute}, now)
					if err != nil {
						t.Errorf("hit: %v", err)
						return
					}
					counts <- st.Count
				}()
			}
			wg.Wait()
			close(counts)

			seen := make(map[int]bool, n)
			for c := range counts {
				require.False(t, seen[c], "count %d observed twice", c)
				seen[c] = true
			}
			require.Len(t, seen, n)
		})
	}
}

func TestRedisWindowStore_SetsTTLAndPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisWindowStore(rdb, WithWindowPrefix("rl:"))

	_, err := store.Hit(context.Background(), "u1:10.0.0.1", domain.Rule{Capacity: 5, Window: 30 * time.Second}, time.Now())
	require.NoError(t, err)

	require.True(t, mr.Exists("rl:u1:10.0.0.1"))
	require.Equal(t, 30*time.Second, mr.TTL("rl:u1:10.0.0.1"))

	mr.FastForward(31 * time.Second)
	require.False(t, mr.Exists("rl:u1:10.0.0.1"))
}

func TestRedisWindowStore_UnreachableReturnsError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisWindowStore(rdb)
	mr.Close()

	_, err := store.Hit(context.Background(), "k", domain.Rule{Capacity: 5, Window: time.Minute}, time.Now())
	require.Error(t, err)
}

func TestMemoryWindowStore_CleanupDropsExpiredKeys(t *testing.T) {
	store := NewMemoryWindowStore(WithWindowCleanupEvery(0))
	now := time.Now()
	_, err := store.Hit(context.Background(), "a", domain.Rule{Capacity: 5, Window: time.Second}, now)
	require.NoError(t, err)
	_, err = store.Hit(context.Background(), "b", domain.Rule{Capacity: 5, Window: time.Minute}, now)
	require.NoError(t, err)

	store.Cleanup(now.Add(2 * time.Second))
	require.Equal(t, 1, store.Len())
}

func TestMemoryWindowStore_CanceledContext(t *testing.T) {
	store := NewMemoryWindowStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Hit(ctx, "k", domain.Rule{Capacity: 5, Window: time.Minute}, time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryWindowStore_HotKeyStaysBounded(t *testing.T) {
	store := NewMemoryWindowStore(WithWindowCleanupEvery(0))
	rule := domain.Rule{Capacity: 5, Window: time.Hour}
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	start := time.Now()
	for i := 0; i < 200_000; i++ {
		st, err := store.Hit(ctx, "attacker", rule, base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		if i >= rule.Capacity {
			require.Equal(t, rule.Capacity+1, st.Count)
		}
	}
	// com log sem limite isso leva minutos
	require.Less(t, time.Since(start), 20*time.Second)

	store.mu.Lock()
	logLen := len(store.entries["attacker"].events)
	store.mu.Unlock()
	require.Equal(t, rule.Capacity+1, logLen)

	st, err := store.Hit(ctx, "victim", rule, base.Add(200*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, st.Count)
}

func TestMemoryWindowStore_OutOfOrderHitsKeepOldest(t *testing.T) {
	store := NewMemoryWindowStore()
	rule := domain.Rule{Capacity: 10, Window: time.Minute}
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	_, err := store.Hit(ctx, "k", rule, base.Add(2*time.Second))
	require.NoError(t, err)
	st, err := store.Hit(ctx, "k", rule, base)
	require.NoError(t, err)
	require.Equal(t, 2, st.Count)
	require.True(t, st.Oldest.Equal(base), "oldest=%s", st.Oldest)

	st, err = store.Hit(ctx, "k", rule, base.Add(time.Second))
	require.NoError(t, err)
	require.True(t, st.Oldest.Equal(base), "oldest=%s", st.Oldest)
}

func TestRedisWindowStore_ServerClockIgnoresCallerTime(t *testing.T) {
	mr, rdb := newTestRedis(t)
	serverNow := time.UnixMilli(1_700_000_000_000)
	mr.SetTime(serverNow)
	store := NewRedisWindowStore(rdb, WithServerClock(true))
	rule := domain.Rule{Capacity: 5, Window: time.Minute}

	// relógio do processo uma hora adiantado
	skewed := serverNow.Add(time.Hour)
	st, err := store.Hit(context.Background(), "k", rule, skewed)
	require.NoError(t, err)
	require.Equal(t, 1, st.Count)
	require.True(t, st.Oldest.Equal(serverNow), "oldest=%s", st.Oldest)

	st, err = store.Hit(context.Background(), "k", rule, skewed.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, st.Count)
}
