// Package server wires the vault HTTP surface: routes, middleware and
// storage.
package server

import (
	"log/slog"
	"net/http"

	"github.com/zimx/zimx-sync/internal/server/config"
	"github.com/zimx/zimx-sync/internal/server/handlers"
	"github.com/zimx/zimx-sync/internal/server/middleware"
	"github.com/zimx/zimx-sync/internal/server/storage"
)

// Storage combines the persistence interfaces the server needs. The sqlite
// implementation satisfies both.
type Storage interface {
	handlers.VaultStorage
}

// New builds the root HTTP handler for the vault server.
func New(logger *slog.Logger, cfg *config.Config, store Storage, users storage.UserStorage, version string) http.Handler {
	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(cfg.Auth.JWTSecret),
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	}

	authHandler := handlers.NewAuthHandler(logger, users, jwtConfig)
	vaultHandler := handlers.NewVaultHandler(logger, store)
	healthHandler := handlers.NewHealthHandler(logger, version)

	authMW := middleware.AuthMiddleware(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("GET /api/v1/vaults/{vault}/doc", authMW(http.HandlerFunc(vaultHandler.ReadDocument)))
	mux.Handle("PUT /api/v1/vaults/{vault}/doc", authMW(http.HandlerFunc(vaultHandler.WriteDocument)))
	mux.Handle("DELETE /api/v1/vaults/{vault}/doc", authMW(http.HandlerFunc(vaultHandler.DeleteDocument)))
	mux.Handle("GET /api/v1/vaults/{vault}/changes", authMW(http.HandlerFunc(vaultHandler.Changes)))

	var handler http.Handler = mux
	handler = middleware.RateLimitMiddleware(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)(handler)
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler
}
