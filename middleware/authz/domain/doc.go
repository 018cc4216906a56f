// Package domain define os tipos de autorização: permissões, papéis, planos,
// assinaturas, organizações e o PrincipalSnapshot avaliado pelo resolver.
//
// Nada aqui carrega dados; o snapshot é montado por um colaborador externo.
package domain
