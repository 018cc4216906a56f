package domain

import "context"

// SlotPool limita requisições simultâneas (em voo) no gateway.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna a função de release; chamá-la mais de uma vez não tem efeito.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
