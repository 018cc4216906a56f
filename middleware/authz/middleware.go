package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"access-gateway/middleware/authz/application"
	"access-gateway/middleware/authz/domain"
)

// PrincipalLoader monta o snapshot de um subject. Deve devolver
// domain.ErrNoPrincipal quando o subject não existe.
type PrincipalLoader interface {
	Load(ctx context.Context, subject string) (domain.PrincipalSnapshot, error)
}

type principalCtxKey struct{}

// PrincipalFromContext devolve o snapshot autorizado pelo middleware.
func PrincipalFromContext(ctx context.Context) (domain.PrincipalSnapshot, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(domain.PrincipalSnapshot)
	return p, ok
}

type Options struct {
	Loader        PrincipalLoader
	SubjectHeader string
	Logger        *slog.Logger
}

// Middleware resolve permissões por rota.
type Middleware struct {
	loader        PrincipalLoader
	subjectHeader string
	logger        *slog.Logger
	resolver      application.Resolver
	validator     *application.SnapshotValidator
}

func NewMiddleware(opts Options) (*Middleware, error) {
	if opts.Loader == nil {
		return nil, errors.New("authz: loader is required")
	}
	if opts.SubjectHeader == "" {
		opts.SubjectHeader = "X-User-ID"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Middleware{
		loader:        opts.Loader,
		subjectHeader: opts.SubjectHeader,
		logger:        opts.Logger,
		validator:     application.NewSnapshotValidator(),
	}, nil
}

// Authenticate carrega e valida o principal da requisição, sem checar permissão.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, status := m.principal(r)
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalCtxKey{}, p)))
	})
}

// Require exige a permissão perm.
func (m *Middleware) Require(perm domain.Permission) func(http.Handler) http.Handler {
	if !perm.Valid() {
		// rota mal configurada: só GOD_MODE passa
		m.logger.Error("authz: invalid permission on route", slog.String("permission", string(perm)))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, status := m.principal(r)
			if status != 0 {
				http.Error(w, http.StatusText(status), status)
				return
			}

			grant := m.resolver.Explain(p, perm)
			if !grant.Allowed() {
				m.logger.Info("authz denied",
					slog.String("subject", p.Subject),
					slog.String("permission", string(perm)),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			level := slog.LevelDebug
			if grant.Source == domain.SourceGodMode {
				level = slog.LevelWarn
			}
			m.logger.Log(r.Context(), level, "authz granted",
				slog.String("subject", p.Subject),
				slog.String("permission", string(perm)),
				slog.String("source", string(grant.Source)),
			)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalCtxKey{}, p)))
		})
	}
}

// principal devolve o snapshot ou o status HTTP de falha (0 = ok).
func (m *Middleware) principal(r *http.Request) (domain.PrincipalSnapshot, int) {
	subject := strings.TrimSpace(r.Header.Get(m.subjectHeader))
	if subject == "" {
		return domain.PrincipalSnapshot{}, http.StatusUnauthorized
	}

	p, err := m.loader.Load(r.Context(), subject)
	switch {
	case errors.Is(err, domain.ErrNoPrincipal):
		return domain.PrincipalSnapshot{}, http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidSnapshot):
		m.logger.Error("authz: invalid snapshot", slog.String("subject", subject), slog.Any("error", err))
		return domain.PrincipalSnapshot{}, http.StatusUnauthorized
	case err != nil:
		m.logger.Error("authz: load principal", slog.String("subject", subject), slog.Any("error", err))
		return domain.PrincipalSnapshot{}, http.StatusInternalServerError
	}

	if err := m.validator.Validate(p); err != nil {
		m.logger.Error("authz: invalid snapshot", slog.String("subject", subject), slog.Any("error", err))
		return domain.PrincipalSnapshot{}, http.StatusUnauthorized
	}
	return p, 0
}
