package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
)

func firmPath(id string) string {
	return "firms/" + url.PathEscape(id)
}

func (c *Client) ListFirms(ctx context.Context, token string) ([]models.Firm, error) {
	var body envelope[[]models.Firm]
	if _, err := c.do(ctx, http.MethodGet, "firms", token, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) GetFirm(ctx context.Context, token, id string) (*models.Firm, error) {
	var body envelope[*models.Firm]
	if _, err := c.do(ctx, http.MethodGet, firmPath(id), token, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) CreateFirm(ctx context.Context, token string, input models.FirmInput) (*models.Firm, error) {
	var body envelope[*models.Firm]
	if _, err := c.do(withoutRetry(ctx), http.MethodPost, "firms", token,
		map[string]models.FirmInput{"firm": input}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) UpdateFirm(ctx context.Context, token, id string, input models.FirmInput) (*models.Firm, error) {
	var body envelope[*models.Firm]
	if _, err := c.do(ctx, http.MethodPut, firmPath(id), token,
		map[string]models.FirmInput{"firm": input}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) DeleteFirm(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, firmPath(id), token, nil, nil)
	return err
}
