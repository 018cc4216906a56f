// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryWindowStore: log de eventos por chave em memória (um processo)
//   - RedisWindowStore: sorted set por chave + script Lua atômico (várias réplicas)
//   - LocalBuckets: token bucket local por chave, dimensionado pela regra (modo fail-open)
//   - Memory/Redis/PromStatsStore: estatísticas de decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
