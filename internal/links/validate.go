package links

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fieldLevel validator.FieldLevel) bool {
		return strings.TrimSpace(fieldLevel.Field().String()) != ""
	})
	return v
}

// IsValidURL reports whether raw is a syntactically valid absolute URL.
func IsValidURL(raw string) bool {
	return validate.Var(raw, "required,url") == nil
}

// Validate checks a NewLink against storage and input constraints.
func (n NewLink) Validate() error {
	return validate.Struct(n)
}
