package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"access-gateway/ingest"
	"access-gateway/middleware/authz"
	"access-gateway/middleware/authz/domain"
	authzinfra "access-gateway/middleware/authz/infra"
	"access-gateway/middleware/ratelimit"
	"access-gateway/middleware/ratelimit/application"
	rldomain "access-gateway/middleware/ratelimit/domain"
	"access-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	handler  http.Handler
	upstream *int
	stats    *infra.MemoryStatsStore
	sink     *bytes.Buffer
}

func newGateway(t *testing.T, capacity int) gatewayFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lim, err := application.NewSlidingWindowLimiter(infra.NewMemoryWindowStore(),
		rldomain.Rule{Capacity: capacity, Window: time.Minute}, application.WithLogger(logger))
	require.NoError(t, err)

	loader := authzinfra.NewMemoryPrincipalLoader(
		domain.PrincipalSnapshot{
			Subject: "alice",
			Role:    &domain.Role{Name: "USER"},
			Organization: &domain.Organization{Subscriptions: []domain.Subscription{
				{Status: "active", Plan: &domain.SubscriptionPlan{Permissions: []domain.Permission{"user:read"}}},
			}},
		},
		domain.PrincipalSnapshot{Subject: "bob", Role: &domain.Role{Name: "USER"}},
	)
	authzMW, err := authz.NewMiddleware(authz.Options{Loader: loader, Logger: logger})
	require.NoError(t, err)

	pol, err := parsePolicy([]byte(`
routes:
  - pattern: /api/users
    methods: [get]
    permission: user:read
  - pattern: /api/users
    methods: [POST]
    permission: user:write
`))
	require.NoError(t, err)

	calls := 0
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	stats := infra.NewMemoryStatsStore()
	sink := &bytes.Buffer{}

	cfg := config{SubjectHeader: "X-User-ID", ConcurrencyMax: 10}
	h := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		limiter:  lim,
		stats:    stats,
		authz:    authzMW,
		policy:   pol,
		upstream: upstream,
		ingest:   ingest.NewHandler(sink, logger),
	})
	return gatewayFixture{handler: h, upstream: &calls, stats: stats, sink: sink}
}

func do(h http.Handler, method, path, subject, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://gateway"+path, strings.NewReader(body))
	r.RemoteAddr = "10.0.0.1:1234"
	if subject != "" {
		r.Header.Set("X-User-ID", subject)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRouter_AuthorizationFlow(t *testing.T) {
	g := newGateway(t, 100)

	require.Equal(t, http.StatusOK, do(g.handler, http.MethodGet, "/api/users", "alice", "").Code)
	require.Equal(t, http.StatusForbidden, do(g.handler, http.MethodPost, "/api/users", "alice", "").Code)
	require.Equal(t, http.StatusForbidden, do(g.handler, http.MethodGet, "/api/users", "bob", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(g.handler, http.MethodGet, "/api/users", "", "").Code)

	// fora da política: basta um principal conhecido
	require.Equal(t, http.StatusOK, do(g.handler, http.MethodGet, "/api/other", "bob", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(g.handler, http.MethodGet, "/api/other", "mallory", "").Code)

	require.Equal(t, 2, *g.upstream)
}

func TestRouter_RateLimitRunsBeforeAuthorization(t *testing.T) {
	g := newGateway(t, 2)

	// negações de autorização também consomem a janela
	require.Equal(t, http.StatusForbidden, do(g.handler, http.MethodGet, "/api/users", "bob", "").Code)
	require.Equal(t, http.StatusForbidden, do(g.handler, http.MethodGet, "/api/users", "bob", "").Code)

	w := do(g.handler, http.MethodGet, "/api/users", "bob", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	// outro subject tem a própria janela
	require.Equal(t, http.StatusOK, do(g.handler, http.MethodGet, "/api/users", "alice", "").Code)
	require.Equal(t, infra.Counters{Allowed: 3, Denied: 1}, g.stats.Total())
}

func TestRouter_SecurityHeaders(t *testing.T) {
	g := newGateway(t, 10)
	w := do(g.handler, http.MethodGet, "/api/users", "alice", "")
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestRouter_LogIngest(t *testing.T) {
	g := newGateway(t, 10)
	body := `{"timestamp":"2026-01-02T03:04:05Z","level":"info","message":"hello"}`

	require.Equal(t, http.StatusUnauthorized, do(g.handler, http.MethodPost, "/api/logs/ingest", "", body).Code)
	require.Equal(t, http.StatusOK, do(g.handler, http.MethodPost, "/api/logs/ingest", "bob", body).Code)
	require.Contains(t, g.sink.String(), `"msg":"hello"`)
	require.Equal(t, 0, *g.upstream)
}

func TestRouter_MetricsScrapeHasItsOwnLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authzMW, err := authz.NewMiddleware(authz.Options{Loader: authzinfra.NewMemoryPrincipalLoader(), Logger: logger})
	require.NoError(t, err)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "gateway_ratelimit_decisions_total 0\n")
	})
	h := newRouter(routerDeps{
		cfg:       config{SubjectHeader: "X-User-ID", MetricsRPM: 2},
		logger:    logger,
		authz:     authzMW,
		upstream:  http.NotFoundHandler(),
		metrics:   metrics,
		statsView: ratelimit.StatsHandler(infra.NewMemoryStatsStore(), logger),
	})

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "", "").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/metrics", "", "").Code)
	require.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/metrics", "", "").Code)

	w := do(h, http.MethodGet, "/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"total":{"allowed":0,"denied":0,"degraded":0}}`, w.Body.String())
}

func TestRouter_EncodedPathCannotSkipPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := authzinfra.NewMemoryPrincipalLoader(
		domain.PrincipalSnapshot{Subject: "bob", Role: &domain.Role{Name: "USER"}},
		domain.PrincipalSnapshot{Subject: "root", Role: &domain.Role{Name: domain.GodModeRole}},
	)
	authzMW, err := authz.NewMiddleware(authz.Options{Loader: loader, Logger: logger})
	require.NoError(t, err)

	pol, err := parsePolicy([]byte(`
routes:
  - pattern: /api/admin/*
    permission: admin:all
`))
	require.NoError(t, err)

	var seen []string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.EscapedPath())
		w.WriteHeader(http.StatusOK)
	})
	h := newRouter(routerDeps{
		cfg:      config{SubjectHeader: "X-User-ID"},
		logger:   logger,
		authz:    authzMW,
		policy:   pol,
		upstream: upstream,
	})

	for _, p := range []string{
		"/api/admin/x",
		"/api/%61dmin/x",
		"/api/%61%64%6d%69%6e/x",
		"/api/users/../admin/x",
		"//api/admin/x",
		"/api/./admin/x",
	} {
		require.Equal(t, http.StatusForbidden, do(h, http.MethodGet, p, "bob", "").Code, p)
	}
	require.Empty(t, seen)

	// quem tem a permissão chega ao upstream com o caminho canônico
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/%61dmin/x", "root", "").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/admin/reports/", "root", "").Code)
	require.Equal(t, []string{"/api/admin/x", "/api/admin/reports/"}, seen)
}
