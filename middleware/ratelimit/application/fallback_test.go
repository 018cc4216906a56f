package application

import (
	"testing"

	"access-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/require"
)

type staticLimiter bool

func (s staticLimiter) Allow() bool { return bool(s) }

// keyedStore devolve um limiter por chave; chaves ausentes voltam nil.
type keyedStore map[domain.Key]domain.Limiter

func (s keyedStore) Get(k domain.Key) domain.Limiter { return s[k] }

func TestLocalGuard_AdmitsWithoutStore(t *testing.T) {
	require.True(t, LocalGuard{}.Admit("user-1:10.0.0.1"))
}

func TestLocalGuard_FollowsBucketPerKey(t *testing.T) {
	g := LocalGuard{Store: keyedStore{
		"user-1:10.0.0.1": staticLimiter(true),
		"user-2:10.0.0.2": staticLimiter(false),
	}}

	require.True(t, g.Admit("user-1:10.0.0.1"))
	require.False(t, g.Admit("user-2:10.0.0.2"))
	// sem limiter para a chave: admite.
	require.True(t, g.Admit("user-3:10.0.0.3"))
}
