package application

import (
	"slices"

	"access-gateway/middleware/authz/domain"
)

// Resolver decide se um principal tem uma permissão.
//
// Ordem de avaliação (a primeira fonte que concede vence):
//
//  1. papel GOD_MODE
//  2. permissões do papel
//  3. plano de qualquer assinatura ativa da organização
//  4. flags da organização
//
// Flags ficam por último: são válvula de escape, não substituem papel/plano.
type Resolver struct{}

// Resolve retorna true se a permissão for concedida por alguma fonte.
// GOD_MODE concede qualquer string; para os demais, permissão mal formada
// retorna false.
func (r Resolver) Resolve(p domain.PrincipalSnapshot, perm domain.Permission) bool {
	return r.Explain(p, perm).Allowed()
}

// Explain é Resolve com a fonte que concedeu (SourceNone quando nega).
func (Resolver) Explain(p domain.PrincipalSnapshot, perm domain.Permission) domain.Grant {
	deny := domain.Grant{Permission: perm, Source: domain.SourceNone}
	if p.Role != nil && p.Role.Name == domain.GodModeRole {
		return domain.Grant{Permission: perm, Source: domain.SourceGodMode}
	}
	if !perm.Valid() {
		return deny
	}

	if role := p.Role; role != nil {
		if slices.Contains(role.Permissions, perm) {
			return domain.Grant{Permission: perm, Source: domain.SourceRole}
		}
	}

	org := p.Organization
	if org == nil {
		return deny
	}
	for _, sub := range org.Subscriptions {
		if !sub.Active() || sub.Plan == nil {
			continue
		}
		if slices.Contains(sub.Plan.Permissions, perm) {
			return domain.Grant{Permission: perm, Source: domain.SourceSubscription}
		}
	}
	if slices.Contains(org.Flags, string(perm)) {
		return domain.Grant{Permission: perm, Source: domain.SourceFlag}
	}
	return deny
}
