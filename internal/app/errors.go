package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/warming-afternoon/Odysseia-Forum-sub000/internal/query"
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

func validationError(field, message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, map[string]any{"field": field})
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	for _, sentinel := range []error{
		query.ErrInvalidSortMethod,
		query.ErrInvalidSortOrder,
		query.ErrInvalidTagLogic,
		query.ErrCustomBaseSort,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
		}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
