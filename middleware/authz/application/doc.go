// Package application contém o resolver de permissões e a validação de
// snapshots na fronteira.
//
// O Resolver é uma função pura sobre (snapshot, permissão): sem estado,
// seguro para uso concorrente e sem logging próprio. Quem precisa auditar
// o motivo da concessão usa Explain.
package application
