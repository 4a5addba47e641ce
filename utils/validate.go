package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/saiset-co/sai-shop/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and reports failures as types.ErrValidation
// naming the offending fields.
func Validate(value interface{}) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return types.Errorf(types.ErrValidation, "%v", err)
	}

	fields := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		fields = append(fields, fieldError.Field()+" ("+fieldError.Tag()+")")
	}

	return types.Errorf(types.ErrValidation, "invalid fields: %s", strings.Join(fields, ", "))
}
