package dto

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/baechuer/medimg-identity/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("role", validateRole)
	_ = validate.RegisterValidation("registration_role", validateRegistrationRole)
}

// validateRole accepts any casing of a known role. Empty values are left to
// `required`/`omitempty`.
func validateRole(fl validator.FieldLevel) bool {
	v := strings.TrimSpace(fl.Field().String())
	if v == "" {
		return true
	}
	_, err := domain.ParseRole(v)
	return err == nil
}

// validateRegistrationRole is validateRole minus the roles nobody may pick
// for themselves.
func validateRegistrationRole(fl validator.FieldLevel) bool {
	v := strings.TrimSpace(fl.Field().String())
	if v == "" {
		return true
	}
	_, err := domain.ParseSelfServiceRole(v)
	return err == nil
}

// validateStruct runs the tag rules and maps the first failure onto the
// domain error taxonomy.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrInternal(err)
	}

	fe := verrs[0]
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return domain.ErrMissingField(field)
	case "role":
		return domain.ErrInvalidRole(fe.Value().(string))
	case "registration_role":
		raw := fe.Value().(string)
		if _, err := domain.ParseRole(raw); err != nil {
			return domain.ErrInvalidRole(raw)
		}
		return domain.ErrRoleNotSelfService(raw)
	case "max":
		return domain.ErrInvalidField(field, "too long")
	default:
		return domain.ErrInvalidField(field, fe.Tag())
	}
}

// jsonName turns a Go field name into the snake_case used on the wire.
func jsonName(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
