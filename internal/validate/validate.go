// Package validate decodes JSON request bodies and checks them against
// struct tag shapes, separating malformed input from schema violations.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindMalformed Kind = "malformed"
	KindSchema    Kind = "schema"
)

// FieldError describes one violated field, named by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

type Error struct {
	Kind   Kind
	Fields []FieldError
	cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindMalformed {
		return "invalid JSON body"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, field.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error {
	return e.cause
}

var engine = newEngine()

func newEngine() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Decode reads one JSON value from r into dst and validates it. Unknown
// fields are ignored.
func Decode(r io.Reader, dst any) error {
	if r == nil {
		return &Error{Kind: KindMalformed, cause: io.EOF}
	}
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(dst); err != nil {
		return &Error{Kind: KindMalformed, cause: err}
	}
	if decoder.More() {
		return &Error{Kind: KindMalformed, cause: errors.New("trailing data after JSON value")}
	}
	return Struct(dst)
}

// DecodeBytes is Decode for an in-memory payload such as a model reply.
func DecodeBytes(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Kind: KindMalformed, cause: err}
	}
	return Struct(dst)
}

// Struct validates an already decoded value.
func Struct(value any) error {
	err := engine.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return &Error{Kind: KindSchema, Fields: fields, cause: err}
}

// Var validates a single value against a tag expression.
func Var(value any, tag string) error {
	return engine.Var(value, tag)
}

func IsMalformed(err error) bool {
	var verr *Error
	return errors.As(err, &verr) && verr.Kind == KindMalformed
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url", "http_url":
		return field + " must be a valid URL"
	case "uuid", "uuid4":
		return field + " must be a UUID"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
