package main

import (
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"access-gateway/middleware/authz"
	"access-gateway/middleware/ratelimit"
	rldomain "access-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

type routerDeps struct {
	cfg      config
	logger   *slog.Logger
	limiter  ratelimit.Checker
	stats    rldomain.StatsStore
	authz    *authz.Middleware
	policy   policy
	upstream http.Handler
	ingest   http.Handler
	metrics  http.Handler
	secure   bool

	// statsView serve os contadores do rate limit (STATS_BACKEND memory|redis).
	statsView http.Handler
}

// newRouter monta a ordem: concorrência → rate limit → autorização → handler.
// Rotas fora da política exigem apenas um principal conhecido.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, canonicalPath)
	r.Use(secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data:; connect-src 'self'",
		SSLRedirect:           d.secure,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !d.secure,
	}).Handler)

	// fora do limiter principal: scrape não consome a cota dos clientes.
	scrape := func(h http.Handler) http.Handler {
		if d.cfg.MetricsRPM > 0 {
			return httprate.LimitByIP(d.cfg.MetricsRPM, time.Minute)(h)
		}
		return h
	}
	if d.metrics != nil {
		r.Method(http.MethodGet, "/metrics", scrape(d.metrics))
	}
	if d.statsView != nil {
		r.Method(http.MethodGet, "/stats", scrape(d.statsView))
	}

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            d.cfg.ConcurrencyMax,
			AcquireTimeout: d.cfg.ConcurrencyTimeout,
			Logger:         d.logger,
		}))
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Limiter:            d.limiter,
			Stats:              d.stats,
			SubjectHeader:      d.cfg.SubjectHeader,
			TrustXForwardedFor: d.cfg.TrustXFF,
			Logger:             d.logger,
		}))

		if d.ingest != nil {
			r.With(d.authz.Authenticate).Post("/api/logs/ingest", d.ingest.ServeHTTP)
		}

		for _, rt := range d.policy.Routes {
			h := d.authz.Require(rt.Permission)(d.upstream)
			if len(rt.Methods) == 0 {
				r.Handle(rt.Pattern, h)
				continue
			}
			for _, m := range rt.Methods {
				r.Method(m, rt.Pattern, h)
			}
		}

		r.Handle("/*", d.authz.Authenticate(d.upstream))
	})
	return r
}

// canonicalPath faz o roteamento usar o caminho decodificado e limpo, o
// mesmo que o upstream vai enxergar. Sem isso, chi casa rotas por RawPath e
// "/api/%61dmin" escaparia da política de "/api/admin/*".
func canonicalPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == "" {
			p = "/"
		}
		clean := path.Clean(p)
		if clean != "/" && strings.HasSuffix(p, "/") {
			clean += "/"
		}
		if clean != r.URL.Path || r.URL.RawPath != "" {
			r = r.Clone(r.Context())
			r.URL.Path = clean
			r.URL.RawPath = ""
		}
		next.ServeHTTP(w, r)
	})
}
