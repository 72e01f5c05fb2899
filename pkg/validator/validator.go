package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator"

	"eventhive/internal/category"
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownCategory    = "Unknown category"
	ErrNotInFuture        = "Date must be in the future"
	ErrNotPositive        = "Value must be positive"
	ErrUnknownValidation  = "Unknown validation error"
)

var hexColour = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var messages = map[string]string{
	"hexcolor6":  ErrInvalidFormat,
	"email":      ErrInvalidFormat,
	"url":        ErrInvalidFormat,
	"oneof":      ErrInvalidFormat,
	"singleline": ErrInvalidFormat,
	"category":   ErrUnknownCategory,
	"required":   ErrFieldRequired,
	"max":        ErrFieldExceedsMaxLen,
	"min":        ErrFieldBelowMinLen,
	"lt":         ErrFieldExceedsMaxVal,
	"lte":        ErrFieldExceedsMaxVal,
	"gt":         ErrFieldBelowMinVal,
	"gte":        ErrFieldBelowMinVal,
	"gtefield":   ErrFieldBelowMinVal,
	"future":     ErrNotInFuture,
	"positive":   ErrNotPositive,
}

// FieldError reports the first field of a request that failed a rule.
type FieldError struct {
	Field   string
	Rule    string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message + ": " + e.Field
}

// Validator checks request DTOs against their validate tags plus the
// rules registered in NewWithClock.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

var std = NewWithClock(time.Now)

// NewWithClock builds a Validator whose "future" rule compares against now.
func NewWithClock(now func() time.Time) *Validator {
	val := &Validator{v: validator.New(), now: now}
	_ = val.v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return category.Known(fl.Field().String())
	})
	_ = val.v.RegisterValidation("hexcolor6", func(fl validator.FieldLevel) bool {
		return hexColour.MatchString(fl.Field().String())
	})
	_ = val.v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
	})
	_ = val.v.RegisterValidation("future", val.future)
	_ = val.v.RegisterValidation("positive", positive)
	return val
}

func (val *Validator) future(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(val.now())
}

func positive(fl validator.FieldLevel) bool {
	switch n := fl.Field().Interface().(type) {
	case int:
		return n > 0
	case int64:
		return n > 0
	case float64:
		return n > 0
	}
	return false
}

// Struct validates s and returns a *FieldError for the first failing field.
func (val *Validator) Struct(ctx context.Context, s any) error {
	err := val.v.StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return err
	}
	ve := vErrors[0]
	msg, ok := messages[ve.Tag()]
	if !ok {
		msg = ErrUnknownValidation
	}
	return &FieldError{Field: ve.Namespace(), Rule: ve.Tag(), Message: msg}
}

// Validate runs the package validator against the wall clock.
func Validate(ctx context.Context, s any) error {
	return std.Struct(ctx, s)
}
