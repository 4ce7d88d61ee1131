package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/platform/httpx"
	"github.com/habilita/habilita/internal/shared"
)

// Authenticator exchanges credentials for a backend token.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (backend.LoginResult, error)
}

// Service wraps the login rules. Passwords are checked by the backend; the
// session table only records who signed in.
type Service struct {
	auth Authenticator
	repo Repository
}

// NewService constructs a new Service. repo may be nil.
func NewService(auth Authenticator, repo Repository) *Service {
	return &Service{auth: auth, repo: repo}
}

// Authenticate validates credentials against the backend. Rejected
// credentials yield shared.ErrInvalidCredentials; transport failures are
// returned wrapped.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	res, err := s.auth.Login(ctx, backend.Credentials{Username: username, Password: password})
	if err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) || errors.Is(err, httpx.ErrValidation) {
			return Identity{}, shared.ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("auth: login: %w", err)
	}
	return Identity{Username: res.Username, Name: res.Name, Token: res.Token}, nil
}

// RegisterSession records the login.
func (s *Service) RegisterSession(ctx context.Context, id, username string, expiresAt time.Time, ip, ua string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.CreateSession(ctx, SessionRecord{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		IP:        ip,
		UserAgent: ua,
	})
}

// RemoveSession deletes the login record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.DeleteSession(ctx, id)
}
