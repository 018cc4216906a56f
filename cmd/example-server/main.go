package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access-gateway/middleware/authz"
	"access-gateway/middleware/authz/domain"
	authzinfra "access-gateway/middleware/authz/infra"
	"access-gateway/middleware/ratelimit"
	"access-gateway/middleware/ratelimit/application"
	rldomain "access-gateway/middleware/ratelimit/domain"
	"access-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Exemplo: injetando os middlewares diretamente no seu webserver (sem proxy),
	// com stores em memória e dois usuários fixos.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryWindowStore()
	store.StartJanitor(ctx)

	lim, err := application.NewSlidingWindowLimiter(store, rldomain.Rule{Capacity: 5, Window: time.Minute},
		application.WithLogger(logger))
	if err != nil {
		logger.Error("limiter", slog.Any("error", err))
		os.Exit(1)
	}

	loader := authzinfra.NewMemoryPrincipalLoader(
		domain.PrincipalSnapshot{Subject: "admin", Role: &domain.Role{Name: domain.GodModeRole}},
		domain.PrincipalSnapshot{
			Subject: "user",
			Role:    &domain.Role{Name: "USER", Permissions: []domain.Permission{"profile:read"}},
		},
	)
	az, err := authz.NewMiddleware(authz.Options{Loader: loader, Logger: logger})
	if err != nil {
		logger.Error("authz", slog.Any("error", err))
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger}))
	r.Use(ratelimit.Middleware(ratelimit.Options{Limiter: lim, SubjectHeader: "X-User-ID", Logger: logger}))
	r.With(az.Require("profile:read")).Get("/profile", func(w http.ResponseWriter, r *http.Request) {
		p, _ := authz.PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte("hello " + p.Subject + "\n"))
	})
	r.With(az.Require("users:delete")).Delete("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}
