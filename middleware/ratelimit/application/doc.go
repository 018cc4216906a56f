// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: SlidingWindowLimiter.Check(ctx, key) retorna um Verdict (allow/deny + cota restante + reset).
package application
