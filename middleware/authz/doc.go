// Package authz fornece o adapter HTTP de autorização.
//
// Fluxo: subject (header confiável, definido pelo proxy de autenticação)
// → PrincipalLoader → validação do snapshot → Resolver.
// Sem subject ou sem snapshot: 401. Negado: 403 sem detalhes da política.
package authz
