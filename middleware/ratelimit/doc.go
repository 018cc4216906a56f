// Package ratelimit fornece adapters HTTP (net/http) para rate limit por janela
// deslizante e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (SlidingWindowLimiter, fallback, acquire/timeout) sem net/http
//   - infra: implementações concretas (stores em memória/Redis, token bucket, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Extrai a chave do cliente ("<subject>:<ip>")
//   2) Chama o limiter para obter o veredito
//   3) Sempre devolve X-RateLimit-Limit/Remaining/Reset
//   4) Se bloqueado, responde 429 com Retry-After; se o store caiu e a política
//      é fail-closed, responde 503
//   5) Se permitido, chama o próximo handler (autorização, depois proxy)
package ratelimit
