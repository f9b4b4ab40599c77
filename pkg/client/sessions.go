package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/drinktrack/drinktrack/pkg/drinks"
)

type Sessions struct {
	options Options
}

func NewSessions(options Options) *Sessions {
	return &Sessions{
		options: options,
	}
}

// Session is a stored session with the totals computed by the server.
type Session struct {
	drinks.Session
	Units float64 `json:"units"`
	Total int     `json:"total"`
}

type pendingResp struct {
	Pending bool `json:"pending"`
}

func (a *Sessions) Get(ctx context.Context, userID string) (*Session, *Response, error) {
	url, err := joinUrl(a.options.BaseUrl, "users", userID, "session")
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, nil, err
	}

	out := new(Session)
	response, err := doHTTP(ctx, a.options, req, out)
	if err != nil {
		if response != nil && response.StatusCode == http.StatusNotFound {
			return nil, response, errors.Wrapf(ErrNotFound, "user '%s'", userID)
		}
		return nil, response, err
	}
	return out, response, nil
}

// Put submits the whole session form and reports whether its write is still pending.
func (a *Sessions) Put(ctx context.Context, s drinks.Session) (bool, *Response, error) {
	url, err := joinUrl(a.options.BaseUrl, "users", s.UserID, "session")
	if err != nil {
		return false, nil, err
	}
	body, err := json.Marshal(s)
	if err != nil {
		return false, nil, errors.Wrap(err, "failed to marshal session")
	}
	req, err := http.NewRequest(http.MethodPut, url.String(), bytes.NewReader(body))
	if err != nil {
		return false, nil, err
	}

	out := new(pendingResp)
	response, err := doHTTP(ctx, a.options, req, out)
	if err != nil {
		return false, response, err
	}
	return out.Pending, response, nil
}

// Pending reports whether a write of the user's session is in flight or queued on the server.
func (a *Sessions) Pending(ctx context.Context, userID string) (bool, *Response, error) {
	url, err := joinUrl(a.options.BaseUrl, "users", userID, "session", "pending")
	if err != nil {
		return false, nil, err
	}
	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return false, nil, err
	}

	out := new(pendingResp)
	response, err := doHTTP(ctx, a.options, req, out)
	if err != nil {
		return false, response, err
	}
	return out.Pending, response, nil
}

func (a *Sessions) Delete(ctx context.Context, userID string) (*Response, error) {
	url, err := joinUrl(a.options.BaseUrl, "users", userID, "session")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodDelete, url.String(), nil)
	if err != nil {
		return nil, err
	}
	return doHTTP(ctx, a.options, req, nil)
}
