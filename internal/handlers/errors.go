package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"vault-ai/internal/contextutil"
	"vault-ai/internal/service"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, ErrorResponse{Error: message})
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
// Dependency failures get a generic body; the cause is only logged.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		logger.WarnContext(ctx, "rejected request", "field", validationErr.Field, "error", err)
		writeError(ctx, w, http.StatusBadRequest, validationErr.Error())
		return
	}

	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) {
		logger.InfoContext(ctx, "duplicate upload", "vault", conflictErr.Vault, "filename", conflictErr.Filename)
		writeError(ctx, w, http.StatusConflict, conflictErr.Error())
		return
	}

	if errors.Is(err, service.ErrInvalidInput) {
		logger.WarnContext(ctx, "invalid input", "error", err)
		writeError(ctx, w, http.StatusBadRequest, "Invalid input")
		return
	}

	if errors.Is(err, service.ErrNotFound) {
		logger.WarnContext(ctx, "resource not found", "error", err)
		writeError(ctx, w, http.StatusNotFound, "Resource not found")
		return
	}

	if errors.Is(err, context.Canceled) {
		logger.InfoContext(ctx, "request canceled", "error", err)
		writeError(ctx, w, http.StatusServiceUnavailable, "Request canceled")
		return
	}

	logger.ErrorContext(ctx, "service error", "error", err)
	writeError(ctx, w, http.StatusInternalServerError, defaultMsg)
}
