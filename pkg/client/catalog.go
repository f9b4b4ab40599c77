package client

import (
	"context"
	"net/http"

	"github.com/drinktrack/drinktrack/pkg/catalog"
)

type Catalog struct {
	options Options
}

func NewCatalog(options Options) *Catalog {
	return &Catalog{
		options: options,
	}
}

func (a *Catalog) Drinks(ctx context.Context) ([]catalog.Drink, *Response, error) {
	url, err := joinUrl(a.options.BaseUrl, "catalog")
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, nil, err
	}

	var out []catalog.Drink
	response, err := doHTTP(ctx, a.options, req, &out)
	if err != nil {
		return nil, response, err
	}
	return out, response, nil
}
