package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"leadboard/api/internal/store"
)

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
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if isValidationError(err) {
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", entityDetails(err)
	}
	return http.StatusInternalServerError, "SERVER_ERROR", err.Error(), entityDetails(err)
}

func entityDetails(err error) any {
	entity := store.EntityOf(err)
	if entity == "" {
		return nil
	}
	return map[string]any{"entity": entity}
}
