package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zimx/zimx-sync/internal/client/storage"
	"github.com/zimx/zimx-sync/internal/client/storage/boltdb"
	pkgapi "github.com/zimx/zimx-sync/pkg/api"
)

func setupService(t *testing.T, apiClient APIClient) Service {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return NewService(apiClient, store)
}

func TestRegister(t *testing.T) {
	mockAPI := &APIClientMock{
		RegisterFunc: func(ctx context.Context, req pkgapi.RegisterRequest) (*pkgapi.RegisterResponse, error) {
			return &pkgapi.RegisterResponse{UserID: "user-1"}, nil
		},
	}
	svc := setupService(t, mockAPI)

	userID, err := svc.Register(context.Background(), "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	calls := mockAPI.RegisterCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].Req.Username)
}

func TestRegisterValidation(t *testing.T) {
	mockAPI := &APIClientMock{}
	svc := setupService(t, mockAPI)
	ctx := context.Background()

	_, err := svc.Register(ctx, "ab", "password123")
	assert.Error(t, err)

	_, err = svc.Register(ctx, "alice", "short")
	assert.Error(t, err)

	// Nothing reached the server.
	assert.Empty(t, mockAPI.RegisterCalls())
}

func TestLoginPersistsSession(t *testing.T) {
	mockAPI := &APIClientMock{
		LoginFunc: func(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
			return &pkgapi.TokenResponse{AccessToken: "jwt-token", ExpiresIn: 3600}, nil
		},
	}
	svc := setupService(t, mockAPI)
	ctx := context.Background()

	auth, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", auth.AccessToken)

	session, err := svc.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Greater(t, session.ExpiresAt, time.Now().Unix())
}

func TestLoginFailureDoesNotPersist(t *testing.T) {
	mockAPI := &APIClientMock{
		LoginFunc: func(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
			return nil, errors.New("server error (401): invalid credentials")
		},
	}
	svc := setupService(t, mockAPI)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "wrong-password")
	require.Error(t, err)

	_, err = svc.Session(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}

func TestSessionExpired(t *testing.T) {
	mockAPI := &APIClientMock{
		LoginFunc: func(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
			return &pkgapi.TokenResponse{AccessToken: "jwt-token", ExpiresIn: -10}, nil
		},
	}
	svc := setupService(t, mockAPI)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	_, err = svc.Session(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestLogout(t *testing.T) {
	mockAPI := &APIClientMock{
		LoginFunc: func(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
			return &pkgapi.TokenResponse{AccessToken: "jwt-token", ExpiresIn: 3600}, nil
		},
	}
	svc := setupService(t, mockAPI)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))

	_, err = svc.Session(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
}
