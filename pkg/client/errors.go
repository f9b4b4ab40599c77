package client

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when the user has no stored session.
var ErrNotFound = errors.New("session not found")

// RequestError is a failed request. StatusCode is zero when no reply was received.
// ID and Message are filled from a JSON error reply of the API.
type RequestError struct {
	Err        error
	StatusCode int
	ID         int
	Message    string
	Body       string
}

func newRequestError(err error, statusCode int, body []byte) *RequestError {
	e := &RequestError{Err: err, StatusCode: statusCode, Body: string(body)}
	var reply struct {
		ID      int    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &reply) == nil {
		e.ID, e.Message = reply.ID, reply.Message
	}
	return e
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return errors.Wrap(e.Err, e.Message).Error()
	}
	if e.Body != "" {
		return errors.Wrap(e.Err, e.Body).Error()
	}
	return e.Err.Error()
}

type ParseError struct {
	Err error
}

func newParseError(err error) *ParseError {
	return &ParseError{Err: err}
}

func (e ParseError) Unwrap() error {
	return e.Err
}

func (e ParseError) Error() string {
	return e.Err.Error()
}
