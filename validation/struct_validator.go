package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/flowkit/errors"
)

// FieldError is one failed rule, reported under the "fields" detail of an
// INVALID_PARAMS error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Field names in messages follow json tags, falling back to snake_case.
var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return toSnakeCase(f.Name)
		}
		return name
	})
	return v
})

// Validate checks s against its `validate` struct tags.
func Validate(s any) error {
	err := structValidator().Struct(s)
	if err == nil {
		return nil
	}
	var failed validator.ValidationErrors
	if !stderrors.As(err, &failed) {
		return errors.InvalidParams(err.Error())
	}

	fields := make([]FieldError, len(failed))
	lines := make([]string, len(failed))
	for i, fe := range failed {
		fields[i] = FieldError{Field: fieldPath(fe), Message: describe(fe)}
		lines[i] = fields[i].Field + ": " + fields[i].Message
	}
	return errors.InvalidParams(strings.Join(lines, "; ")).WithDetail("fields", fields)
}

// fieldPath drops the root struct so nested fields read "config.provider".
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

var ruleMessages = map[string]string{
	"required": "is required",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"gt":       "must be greater than %s",
	"gte":      "must be greater than or equal to %s",
	"oneof":    "must be one of: %s",
	"url":      "must be a URL",
}

func describe(fe validator.FieldError) string {
	if fe.Tag() == "required_without" {
		return "is required when " + toSnakeCase(fe.Param()) + " is not set"
	}
	msg, ok := ruleMessages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	return strings.Replace(msg, "%s", fe.Param(), 1)
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
