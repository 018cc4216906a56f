package domain

import "errors"

// GodModeRole é o papel sentinela que concede qualquer permissão.
const GodModeRole = "GOD_MODE"

// SubscriptionActive é o único status que concede permissões.
const SubscriptionActive = "active"

const maxPermissionLen = 128

var (
	// ErrNoPrincipal indica que a requisição não identifica um usuário.
	ErrNoPrincipal = errors.New("authz: no principal")
	// ErrInvalidSnapshot indica um snapshot recebido em formato inválido.
	ErrInvalidSnapshot = errors.New("authz: invalid principal snapshot")
)

// Permission é um identificador opaco, comparado por igualdade exata
// (case-sensitive). Ex: "user:read".
type Permission string

// Valid reporta se p é não vazio, tem no máximo 128 bytes e usa apenas
// [A-Za-z0-9_.:-].
func (p Permission) Valid() bool {
	if p == "" || len(p) > maxPermissionLen {
		return false
	}
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == ':', c == '-':
		default:
			return false
		}
	}
	return true
}

type Role struct {
	Name        string       `json:"name" validate:"required,max=64"`
	Permissions []Permission `json:"permissions" validate:"dive,permission"`
}

type SubscriptionPlan struct {
	Name        string       `json:"name,omitempty"`
	Permissions []Permission `json:"permissions" validate:"dive,permission"`
}

type Subscription struct {
	Status string            `json:"status" validate:"required"`
	Plan   *SubscriptionPlan `json:"plan,omitempty"`
}

func (s Subscription) Active() bool { return s.Status == SubscriptionActive }

type Organization struct {
	ID            string         `json:"id,omitempty"`
	Flags         []string       `json:"flags,omitempty"`
	Subscriptions []Subscription `json:"subscriptions,omitempty" validate:"dive"`
}

// PrincipalSnapshot é a visão materializada (somente leitura) de um usuário
// com papel e organização. Role e Organization são opcionais: ausência
// significa "nenhuma concessão por essa fonte".
type PrincipalSnapshot struct {
	Subject      string        `json:"subject" validate:"required,max=256"`
	Role         *Role         `json:"role,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}

// Source identifica qual fonte concedeu a permissão.
type Source string

const (
	SourceNone         Source = ""
	SourceGodMode      Source = "god_mode"
	SourceRole         Source = "role"
	SourceSubscription Source = "subscription"
	SourceFlag         Source = "flag"
)

// Grant é o resultado explicado de uma resolução.
type Grant struct {
	Permission Permission
	Source     Source
}

func (g Grant) Allowed() bool { return g.Source != SourceNone }
