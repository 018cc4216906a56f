// Package infra contém carregadores de PrincipalSnapshot.
//
// Os snapshots são montados por outro sistema (dono de usuários, papéis e
// assinaturas) e publicados num cache; aqui só lemos.
package infra
