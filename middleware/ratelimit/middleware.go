package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"access-gateway/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// Checker é o contrato do limiter visto pelo adapter HTTP
// (implementado por application.SlidingWindowLimiter).
type Checker interface {
	Check(ctx context.Context, key domain.Key) (domain.Verdict, error)
}

type Options struct {
	Limiter            Checker
	Stats              domain.StatsStore
	KeyFn              KeyFunc
	SubjectHeader      string
	TrustXForwardedFor bool
	RejectStatus       int
	// DegradedStatus é usado quando o store está fora e a política negou (fail-closed).
	DegradedStatus int
	Logger         *slog.Logger
	Now            func() time.Time
}

// clientIP pega o IP do cliente: primeiro IP do X-Forwarded-For (se confiável)
// ou o host de RemoteAddr.
func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// SubjectIPKeyFunc gera "<subject>:<ip>". Sem subject, usa "anonymous".
func SubjectIPKeyFunc(subjectHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		subject := ""
		if subjectHeader != "" {
			subject = strings.TrimSpace(r.Header.Get(subjectHeader))
		}
		if subject == "" {
			subject = "anonymous"
		}
		return subject + ":" + clientIP(r, trustXFF)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.DegradedStatus == 0 {
		opts.DegradedStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = SubjectIPKeyFunc(opts.SubjectHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			v, err := opts.Limiter.Check(r.Context(), key)
			if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
				opts.Logger.Error("rate limit check", slog.Any("error", err))
			}

			if opts.Stats != nil {
				if serr := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Outcome: domain.OutcomeOf(v),
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      opts.Now(),
				}); serr != nil {
					opts.Logger.Debug("rate limit stats", slog.Any("error", serr))
				}
			}

			now := opts.Now()
			if v.Degraded {
				w.Header().Set("X-RateLimit-Degraded", "1")
				if !v.Allowed {
					w.Header().Set("Retry-After", formatInt(int(v.RetryAfter(now).Seconds())))
					http.Error(w, http.StatusText(opts.DegradedStatus), opts.DegradedStatus)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", formatInt(v.Limit))
			w.Header().Set("X-RateLimit-Remaining", formatInt(v.Remaining))
			w.Header().Set("X-RateLimit-Reset", formatUnix(v.ResetAt))

			if !v.Allowed {
				w.Header().Set("Retry-After", formatInt(int(v.RetryAfter(now).Seconds())))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
