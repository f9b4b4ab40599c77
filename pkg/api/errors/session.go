package errors

import (
	"fmt"
	"net/http"
)

type sessionError struct {
	genericError
}

type (
	InvalidUserIDError       sessionError
	InvalidSessionError      sessionError
	SessionDoesNotExistError sessionError
	ServiceUnavailableError  sessionError
)

var (
	InvalidUserID = &InvalidUserIDError{
		genericError: genericError{
			ID:       InvalidUserIDErrorID,
			HttpCode: http.StatusBadRequest,
			Message:  "Invalid user id",
		},
	}
	SessionDoesNotExist = &SessionDoesNotExistError{
		genericError: genericError{
			ID:       SessionDoesNotExistErrorID,
			HttpCode: http.StatusNotFound,
			Message:  "Session does not exist",
		},
	}
	ShuttingDown = &ServiceUnavailableError{
		genericError: genericError{
			ID:       ServiceUnavailableErrorID,
			HttpCode: http.StatusServiceUnavailable,
			Message:  "Service is shutting down",
		},
	}
)

func NewInvalidSessionError(inner error) *InvalidSessionError {
	return &InvalidSessionError{
		genericError: genericError{
			ID:       InvalidSessionErrorID,
			HttpCode: http.StatusUnprocessableEntity,
			Message:  fmt.Sprintf("Invalid session: %v", inner),
		},
	}
}
