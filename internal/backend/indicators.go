package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/platform/httpx"
)

// ListIndicators returns every indicator definition.
func (c *Client) ListIndicators(ctx context.Context) ([]indicators.Indicator, error) {
	return listAll[indicators.Indicator](ctx, c, "/indicators/", nil)
}

// ListHeadquarters returns every headquarters.
func (c *Client) ListHeadquarters(ctx context.Context) ([]indicators.Headquarters, error) {
	return listAll[indicators.Headquarters](ctx, c, "/headquarters/", nil)
}

// ListResults prefers the detailed endpoint, which embeds display fields, and
// falls back to the plain one on servers that do not expose it.
func (c *Client) ListResults(ctx context.Context, q indicators.ResultQuery) ([]indicators.RawResult, error) {
	query := url.Values{}
	if q.Year > 0 {
		query.Set("year", strconv.Itoa(q.Year))
	}
	if q.IndicatorID > 0 {
		query.Set("indicator", strconv.FormatInt(q.IndicatorID, 10))
	}
	if q.HeadquartersID > 0 {
		query.Set("headquarters", strconv.FormatInt(q.HeadquartersID, 10))
	}
	items, err := listAll[indicators.RawResult](ctx, c, "/results/detailed/", query)
	if errors.Is(err, httpx.ErrNotFound) {
		return listAll[indicators.RawResult](ctx, c, "/results/", query)
	}
	return items, err
}

// CreateResult posts one measurement.
func (c *Client) CreateResult(ctx context.Context, in indicators.ResultInput) (indicators.RawResult, error) {
	var out indicators.RawResult
	err := c.sendJSON(ctx, http.MethodPost, "/results/", in, &out)
	return out, err
}

// CreateResults posts a batch to the bulk endpoint. Servers without it get
// one POST per row; the first failure stops the batch and the rows created so
// far are returned alongside the error.
func (c *Client) CreateResults(ctx context.Context, in []indicators.ResultInput) ([]indicators.RawResult, error) {
	if len(in) == 0 {
		return []indicators.RawResult{}, nil
	}
	var out []indicators.RawResult
	err := c.sendJSON(ctx, http.MethodPost, "/results/bulk/", in, &out)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, httpx.ErrNotFound) {
		return nil, err
	}
	out = make([]indicators.RawResult, 0, len(in))
	for _, item := range in {
		created, err := c.CreateResult(ctx, item)
		if err != nil {
			return out, err
		}
		out = append(out, created)
	}
	return out, nil
}
