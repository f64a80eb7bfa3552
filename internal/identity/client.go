// Package identity предоставляет клиент внешнего сервиса аутентификации платформы.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"

	"github.com/mmeshcher/ecoshare/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client определяет пользователя по токену через GET /api/auth/me.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// Profile описывает ответ сервиса аутентификации. Идентификатор приходит в поле _id или id.
type Profile struct {
	MongoID  string `json:"_id"`
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UserID возвращает идентификатор пользователя из профиля.
func (p Profile) UserID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.MongoID
}

// NewClient создаёт клиент сервиса аутентификации по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = time.Second
	hc.HTTPClient.Timeout = 5 * time.Second
	hc.Logger = nil

	return &Client{
		baseURL:    base,
		httpClient: hc,
	}
}

// Me возвращает профиль владельца токена.
func (c *Client) Me(ctx context.Context, token string) (*Profile, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, middleware.ErrUnauthenticated
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if p.UserID() == "" {
		return nil, fmt.Errorf("decode response: empty user id")
	}

	return &p, nil
}

// ResolveCaller возвращает идентификатор владельца токена.
func (c *Client) ResolveCaller(ctx context.Context, token string) (string, error) {
	p, err := c.Me(ctx, token)
	if err != nil {
		return "", err
	}
	return p.UserID(), nil
}
