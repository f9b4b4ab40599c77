package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	BaseUrl string
	Client  Doer
}

var defaultOptions = Options{
	BaseUrl: "http://127.0.0.1:8080",
	Client:  &http.Client{Timeout: 5 * time.Second},
}

type Client struct {
	options  Options
	Sessions *Sessions
	Catalog  *Catalog
}

type Response struct {
	*http.Response
}

// NewClient creates new client instance.
// If no options provided will use default.
func NewClient(options ...Options) (*Client, error) {
	if len(options) > 1 {
		return nil, errors.New("too many options provided. Expects no or just one item")
	}

	opts := defaultOptions
	if len(options) == 1 {
		option := options[0]
		if option.BaseUrl != "" {
			opts.BaseUrl = option.BaseUrl
		}
		if option.Client != nil {
			opts.Client = option.Client
		}
	}
	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base URL '%s'", opts.BaseUrl)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("invalid base URL '%s': unsupported scheme", opts.BaseUrl)
	}

	return &Client{
		options:  opts,
		Sessions: NewSessions(opts),
		Catalog:  NewCatalog(opts),
	}, nil
}

func (a *Client) GetOptions() Options {
	return a.options
}

func newResponse(response *http.Response) *Response {
	return &Response{
		Response: response,
	}
}

func doHTTP(ctx context.Context, options Options, req *http.Request, v any) (*Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := options.Client.Do(req)
	if err != nil {
		return nil, newRequestError(err, 0, nil)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	response := newResponse(resp)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1<<16))
		return response, newRequestError(
			errors.Errorf("Invalid status code: expect 2xx got %d", response.StatusCode),
			response.StatusCode, body,
		)
	}

	select {
	case <-ctx.Done():
		return response, ctx.Err()
	default:
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return response, newParseError(err)
		}
	}
	return response, nil
}

// joinUrl appends escaped path segments to the base URL.
func joinUrl(baseRaw string, segments ...string) (*url.URL, error) {
	base, err := url.Parse(baseRaw)
	if err != nil {
		return nil, err
	}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return base.JoinPath(escaped...), nil
}
