package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"rabbithole/api/internal/auth"
	"rabbithole/api/internal/validate"
)

const (
	codeNotFound          = "NOT_FOUND"
	codeValidation        = "VALIDATION_ERROR"
	codeInvalidJSON       = "INVALID_JSON"
	codeUnauthorized      = "UNAUTHORIZED"
	codeServer            = "SERVER_ERROR"
	codePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	codeExportUnavailable = "EXPORT_UNAVAILABLE"
	codeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
)

// DomainError is an error with a fixed HTTP rendering:
// {"code": Code, "error": Message, "details": Details}.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %d: %s", e.Code, e.Status, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// notFound turns a missing or foreign row into a 404 carrying message.
func notFound(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, codeNotFound, message, nil)
	}
	return err
}

func validationError(field, rule, message string) *DomainError {
	return domainError(http.StatusBadRequest, codeValidation, message, map[string]any{
		"fields": []map[string]string{{"field": field, "rule": rule, "message": message}},
	})
}

// mapError renders any error returned by the service. Unknown errors are
// reported as a bare 500 without internal detail.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *validate.Error
	if errors.As(err, &validationErr) {
		if validationErr.Kind == validate.KindMalformed {
			return http.StatusBadRequest, codeInvalidJSON, "Invalid JSON body", nil
		}
		return http.StatusBadRequest, codeValidation, "Invalid request body", map[string]any{"fields": validationErr.Fields}
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, codeNotFound, "Not found", nil
	case errors.Is(err, auth.ErrMissingIdentity):
		return http.StatusUnauthorized, codeUnauthorized, "Missing x-user-id header", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, codeUnauthorized, "invalid token", nil
	}
	return http.StatusInternalServerError, codeServer, "internal server error", nil
}
