package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/habilita/habilita/internal/platform/httpx"
)

// ErrNoToken is returned when a login succeeds without a usable token.
var ErrNoToken = errors.New("backend: login response carries no token")

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the identity returned by a successful login.
type LoginResult struct {
	Token    string
	Username string
	Name     string
}

type loginResponse struct {
	Access string `json:"access"`
	Token  string `json:"token"`
	Key    string `json:"key"`
	User   struct {
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"user"`
}

// Login exchanges credentials for an access token. The backend has answered
// with access, token or key depending on its auth configuration.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var resp loginResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/login/", creds, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			apiErr.Status = http.StatusUnauthorized
			return LoginResult{}, apiErr
		}
		return LoginResult{}, err
	}
	token := resp.Access
	for _, candidate := range []string{resp.Token, resp.Key} {
		if token == "" {
			token = candidate
		}
	}
	if token == "" {
		return LoginResult{}, errors.Join(httpx.ErrUnauthorized, ErrNoToken)
	}
	name := strings.TrimSpace(resp.User.FirstName + " " + resp.User.LastName)
	username := resp.User.Username
	if username == "" {
		username = creds.Username
	}
	if name == "" {
		name = username
	}
	return LoginResult{Token: token, Username: username, Name: name}, nil
}
