package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// decimal amounts are compared as numbers by gt/lt/min/max tags
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return v
}

// Validate checks v against its validate tags. The returned error lists
// every failing field by its JSON name.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "email":
			msg = "must be a valid email address"
		case "url":
			msg = "must be a valid URL"
		case "max":
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		case "min":
			msg = fmt.Sprintf("must be at least %s characters", fe.Param())
		case "gt":
			msg = fmt.Sprintf("must be greater than %s", fe.Param())
		default:
			msg = "is invalid"
		}
		msgs = append(msgs, fe.Namespace()+" "+msg)
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

var ErrValidation = errors.New("validation failed")
