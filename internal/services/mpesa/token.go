package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	tokenPath        = "/oauth/v1/generate"
	GrantTypeDefault = "client_credentials"
)

type AccessToken struct {
	Value     string
	ExpiresIn int
}

type tokenReply struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   code   `json:"expires_in"`
}

// GetAccessToken performs one client_credentials exchange. Tokens are not
// cached; every push and query asks for a new one.
func (c *Client) GetAccessToken(ctx context.Context) (*AccessToken, error) {
	resp, err := c.send(ctx, "token", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetBasicAuth(c.creds.ConsumerKey, c.creds.ConsumerSecret).
			SetQueryParam("grant_type", GrantTypeDefault).
			Get(tokenPath)
	})
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		c.logger.Warn("token request rejected", zap.Int("status", resp.StatusCode()))
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var reply tokenReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body()), Err: fmt.Errorf("GetAccessToken: json.Unmarshal: %w", err)}
	}
	if strings.TrimSpace(reply.AccessToken) == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode(), Body: string(resp.Body()), Err: errors.New("GetAccessToken: empty access_token")}
	}

	expiresIn, _ := strconv.Atoi(reply.ExpiresIn.String())
	c.logger.Debug("access token issued", zap.String("access_token", maskToken(reply.AccessToken)), zap.Int("expires_in", expiresIn))

	return &AccessToken{Value: reply.AccessToken, ExpiresIn: expiresIn}, nil
}

// fetchToken retries once when the provider failed on its side while
// issuing the token.
func (c *Client) fetchToken(ctx context.Context) (*AccessToken, error) {
	token, err := c.GetAccessToken(ctx)
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.StatusCode >= 500 {
		c.logger.Warn("retrying token request", zap.Int("status", authErr.StatusCode))
		return c.GetAccessToken(ctx)
	}
	return token, err
}
