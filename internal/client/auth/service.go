// Package auth manages the client session: account registration, login,
// logout and the persisted access token.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/validation"
	pkgapi "github.com/zimx/zimx-sync/pkg/api"
)

//go:generate go tool moq -out apiclient_mock.go . APIClient

// APIClient is the subset of the server API the auth service uses.
type APIClient interface {
	Register(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error)
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
}

// Service defines authentication and session operations.
type Service interface {
	// Register creates a new server account. It does not log in.
	Register(ctx context.Context, username, password string) (string, error)

	// Login authenticates and persists the session locally.
	Login(ctx context.Context, username, password string) (*storage.AuthData, error)

	// Session returns the stored session.
	// Returns storage.ErrAuthNotFound when not logged in and an error when
	// the stored token has expired.
	Session(ctx context.Context) (*storage.AuthData, error)

	// Logout removes the stored session.
	Logout(ctx context.Context) error
}

type service struct {
	apiClient APIClient
	store     storage.AuthStorage
}

// NewService creates the auth service over the given API client and store.
func NewService(apiClient APIClient, store storage.AuthStorage) Service {
	return &service{
		apiClient: apiClient,
		store:     store,
	}
}

func (s *service) Register(ctx context.Context, username, password string) (string, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return "", fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return "", fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", fmt.Errorf("registration failed: %w", err)
	}

	return resp.UserID, nil
}

func (s *service) Login(ctx context.Context, username, password string) (*storage.AuthData, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	auth := &storage.AuthData{
		Username:    username,
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Unix() + resp.ExpiresIn,
	}

	if err := s.store.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return auth, nil
}

func (s *service) Session(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.store.GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	if !auth.Valid(time.Now().Unix()) {
		return nil, fmt.Errorf("session for %s has expired, log in again", auth.Username)
	}

	return auth, nil
}

func (s *service) Logout(ctx context.Context) error {
	if err := s.store.DeleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
