package dto

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type SelectRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=seller buyer"`
}

func (r *SelectRoleRequest) Validate() error {
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	return validationError(validate.Struct(r))
}

// validationError maps the first validator failure onto a domain error.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrInvalidField("body", err.Error())
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return domain.ErrMissingField(field)
	case "oneof":
		if field == "role" {
			return domain.ErrInvalidRole(fe.Value().(string))
		}
		return domain.ErrInvalidField(field, "must be one of: "+fe.Param())
	default:
		return domain.ErrInvalidField(field, fe.Tag())
	}
}
