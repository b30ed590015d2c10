package profiles

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func (n NewProfile) validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

func (u Update) validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if u.Socials != nil {
		for _, social := range *u.Socials {
			if err := validate.Struct(social); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
			}
		}
	}
	return nil
}
