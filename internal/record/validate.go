// internal/record/validate.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// The mutation pipeline calls Validate on every document right before it
// is written.  Tag failures are folded into *errs.ValidationError so
// callers never see validator types.
package record

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/vidcat/internal/errs"
)

//
// validator instance (package-level singleton, safe for concurrent use)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	// Report bson names so messages match stored field names.
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("bson"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return val
}

// Validate checks rec against its struct tags.
func Validate(rec Record) error {
	err := v.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &errs.ValidationError{Entity: entityName(rec)}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, errs.FieldError{
			Field:  fe.Field(),
			Reason: reason(fe),
		})
	}
	return out
}

// ValidateCounters rejects negative values.  Negatives are never clamped.
func ValidateCounters(c Counters) error {
	out := &errs.ValidationError{Entity: "video"}
	check := func(field string, n int64) {
		if n < 0 {
			out.Fields = append(out.Fields, errs.FieldError{Field: field, Reason: "must be >= 0"})
		}
	}
	check("views_count", c.Views)
	check("likes_count", c.Likes)
	check("shares_count", c.Shares)
	if len(out.Fields) > 0 {
		return out
	}
	return nil
}

// ValidateEnum checks a single value against the allowed set.
func ValidateEnum(entity, field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errs.Invalid(entity, field, "must be one of "+strings.Join(allowed, " "))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must be >= " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}

func entityName(rec Record) string {
	return strings.TrimSuffix(rec.Collection(), "s")
}
