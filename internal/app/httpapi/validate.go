package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"

	svcerrors "github.com/patisserie-labs/storefront/internal/errors"
)

// validator checks request DTOs and reports the first failing field by its
// JSON name.
type validator struct {
	v *playground.Validate
}

func newValidator() *validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &validator{v: v}
}

func (v *validator) Struct(dst interface{}) error {
	err := v.v.Struct(dst)
	if err == nil {
		return nil
	}
	var invalid *playground.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	var fields playground.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return svcerrors.BadRequest(err.Error())
	}
	fe := fields[0]
	field := fieldPath(fe.Namespace())
	return svcerrors.Validation(field, describe(field, fe))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(field string, fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid e-mail address"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "numeric":
		return field + " must contain digits only"
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
