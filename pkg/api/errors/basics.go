package errors

import (
	"fmt"
	"net/http"
)

type Identifier int

const (
	UnknownErrorID   Identifier = 0
	WrongJSONErrorID Identifier = 1

	InvalidUserIDErrorID       Identifier = 100
	InvalidSessionErrorID      Identifier = 101
	SessionDoesNotExistErrorID Identifier = 102

	ServiceUnavailableErrorID Identifier = 200
)

// ApiError is an error rendered to API clients as JSON.
type ApiError interface {
	error
	GetID() Identifier
	GetHttpCode() int
	GetMessage() string
}

type genericError struct {
	ID       Identifier `json:"error"`
	HttpCode int        `json:"-"`
	Message  string     `json:"message"`
}

func (e *genericError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.ID, e.Message)
}

func (e *genericError) GetID() Identifier {
	return e.ID
}

func (e *genericError) GetHttpCode() int {
	return e.HttpCode
}

func (e *genericError) GetMessage() string {
	return e.Message
}

type (
	UnknownError   struct{ genericError }
	WrongJSONError struct{ genericError }
)

// NewUnknownError hides the inner error from the client; it is only logged.
func NewUnknownError(inner error) *UnknownError {
	return &UnknownError{
		genericError: genericError{
			ID:       UnknownErrorID,
			HttpCode: http.StatusInternalServerError,
			Message:  "Error is unknown",
		},
	}
}

func NewWrongJSONError(inner error) *WrongJSONError {
	return &WrongJSONError{
		genericError: genericError{
			ID:       WrongJSONErrorID,
			HttpCode: http.StatusBadRequest,
			Message:  fmt.Sprintf("Failed to parse json message: %v", inner),
		},
	}
}
