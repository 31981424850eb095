package presence

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate checks the struct tags on Resource. Field names in errors use the
// json name so they match what API clients sent.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
}

// Validate rejects a resource that must not be written: missing names,
// unknown enums, a negative rate, start after end, malformed dates, or an
// override value outside {0, 0.5, 1}.
func Validate(r *Resource) error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return translate(fieldErrs[0])
		}
		return err
	}
	if r.Rate.IsNegative() {
		return fieldError("tjm", ErrInvalidField, "must not be negative")
	}
	if r.StartDate != "" && r.EndDate != "" && r.StartDate > r.EndDate {
		return fieldError("start_date", ErrInvalidRange, "%s is after end_date %s", r.StartDate, r.EndDate)
	}
	if err := ValidateOverrides(r.Overrides); err != nil {
		return err
	}
	for _, d := range r.DynamicHolidays {
		if !d.Valid() {
			return fieldError("dynamic_holidays", ErrInvalidDate, "%q is not YYYY-MM-DD", d)
		}
	}
	return nil
}

// ValidateOverrides checks every key is a date and every value a Presence.
func ValidateOverrides(overrides map[Date]Presence) error {
	for d, v := range overrides {
		if !d.Valid() {
			return fieldError("overrides", ErrInvalidDate, "%q is not YYYY-MM-DD", d)
		}
		if !v.Valid() {
			return fieldError("overrides", ErrInvalidPresence, "%s: %v is not one of 0, 0.5, 1", d, float64(v))
		}
	}
	return nil
}

func translate(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fieldError(field, ErrMissingField, "is required")
	case "isodate":
		return fieldError(field, ErrInvalidDate, "%q is not YYYY-MM-DD", fe.Value())
	case "oneof":
		return fieldError(field, ErrInvalidField, "must be one of %s", fe.Param())
	default:
		return fieldError(field, ErrInvalidField, "failed %s=%s", fe.Tag(), fe.Param())
	}
}
