package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zimx/zimx-sync/pkg/api"
)

// contextKey is the type for request context keys
type contextKey string

const (
	// UserIDKey is the context key holding the authenticated user id
	UserIDKey contextKey = "user_id"
	// UsernameKey is the context key holding the authenticated username
	UsernameKey contextKey = "username"
)

// GetUserID extracts the authenticated user id from a request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUsername extracts the authenticated username from a request context
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

// sendJSON writes a JSON response with the given status code
func sendJSON(w http.ResponseWriter, logger *slog.Logger, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// sendError writes an ErrorResponse with the given status code
func sendError(w http.ResponseWriter, logger *slog.Logger, message string, status int) {
	sendJSON(w, logger, api.ErrorResponse{Error: message}, status)
}
