package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

const maxBodyBytes = 32 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("checkfield", func(fl validator.FieldLevel) bool {
		return checks.KnownField(fl.Field().String())
	})
	_ = v.RegisterValidation("checkstatus", func(fl validator.FieldLevel) bool {
		return checks.Status(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("partition", func(fl validator.FieldLevel) bool {
		return checks.Partition(fl.Field().String()).Valid()
	})
	return v
}

// RequestError is a malformed or invalid request body.
type RequestError struct {
	Fields map[string]string
	Err    error
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid request: %v", e.Err)
	}
	parts := make([]string, 0, len(e.Fields))
	for f, tag := range e.Fields {
		parts = append(parts, f+" ("+tag+")")
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func (e *RequestError) Unwrap() error { return e.Err }

// Validate checks v against its `validate` tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return &RequestError{Fields: ValidationErrors(err), Err: err}
	}
	return nil
}

// DecodeJSON reads the body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &RequestError{Err: fmt.Errorf("decode body: %w", err)}
	}
	return Validate(dst)
}

// ValidationErrors flattens validator errors to field -> failed tag.
func ValidationErrors(err error) map[string]string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil
	}
	out := make(map[string]string, len(ves))
	for _, ve := range ves {
		out[ve.Field()] = ve.Tag()
	}
	return out
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
