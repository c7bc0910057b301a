package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/asia-ai/asia-chat/internal/domain/chat/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Data  *models.User `json:"data"`
	Token string       `json:"token"`
}

// LoginResult is a successful sign-in
type LoginResult struct {
	Token string
	User  *models.User
}

// Login signs in and returns the bearer token from the Authorization header
// or, failing that, from the response body.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var body loginResponse
	resp, err := c.do(withoutRetry(ctx), http.MethodPost, "users/sign_in", "",
		map[string]credentials{"user": {Email: email, Password: password}}, &body)
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(strings.TrimPrefix(resp.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		token = body.Token
	}
	if token == "" {
		return nil, ErrNoToken
	}

	return &LoginResult{Token: token, User: body.Data}, nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	var body envelope[*models.User]
	if _, err := c.do(withoutRetry(ctx), http.MethodPost, "users/sign_up", "",
		map[string]models.RegisterRequest{"user": req}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Logout revokes token on the backend
func (c *Client) Logout(ctx context.Context, token string) error {
	if _, err := c.do(ctx, http.MethodDelete, "users/sign_out", token, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	var body envelope[*models.User]
	if _, err := c.do(ctx, http.MethodGet, "user", token, nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
