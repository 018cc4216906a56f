// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A janela é deslizante (log de eventos com timestamp), não fixa: um burst na
// virada do minuto não ganha cota extra.
package domain
