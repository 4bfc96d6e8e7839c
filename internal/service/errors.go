package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"aiaxstock/internal/duration"
)

var (
	// ErrForbidden is returned when the session may not touch a record.
	ErrForbidden = errors.New("forbidden")
	// ErrDecrementFailed is returned when the fallback checkout lost every
	// compare-and-swap race for a candidate lot.
	ErrDecrementFailed = errors.New("stock decrement failed")
	// ErrCheckoutUnconfirmed is returned when the store-side checkout failed
	// in a way that may still have recorded a sale.
	ErrCheckoutUnconfirmed = errors.New("checkout outcome unconfirmed")
	// ErrInvalidRole is returned for a login role other than owner or admin.
	ErrInvalidRole = errors.New("invalid role")
	// ErrUnknownIdentity is returned when an identifier is not on the allow-list.
	ErrUnknownIdentity = errors.New("identifier not recognized for role")
	// ErrInvalidToken is returned for a missing, malformed or expired session token.
	ErrInvalidToken = errors.New("invalid or expired session token")
)

// FieldError is a single failed input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every invalid field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		return duration.Valid(fl.Field().String())
	})
	return v
}

// validateStruct runs the struct tags and converts failures to a ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "duration":
		return fmt.Sprintf("must be auto or Nd / Nm up to %d days", duration.MaxDays)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
