package application

import (
	"fmt"

	"access-gateway/middleware/authz/domain"

	"github.com/go-playground/validator/v10"
)

// SnapshotValidator valida snapshots vindos de fora (cache, JSON) antes de
// chegarem ao Resolver.
type SnapshotValidator struct {
	v *validator.Validate
}

func NewSnapshotValidator() *SnapshotValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return domain.Permission(fl.Field().String()).Valid()
	})
	return &SnapshotValidator{v: v}
}

// Validate retorna erro que satisfaz errors.Is(err, domain.ErrInvalidSnapshot).
func (s *SnapshotValidator) Validate(p domain.PrincipalSnapshot) error {
	if err := s.v.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidSnapshot, err)
	}
	return nil
}
