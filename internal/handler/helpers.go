package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/oejp/kraken-bridge/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps refresh errors to HTTP responses. Upstream
// failures surface as gateway errors: this service is never the origin of
// account data.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var authErr *domain.ErrAuth
	var notFound *domain.ErrAccountNotFound
	var fetchErr *domain.ErrDataFetch
	var netErr *domain.ErrNetwork

	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error("refresh timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &authErr):
		logger.Error("upstream authentication failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &notFound):
		logger.Error("account not found", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &netErr):
		logger.Error("upstream unreachable", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &fetchErr):
		logger.Error("upstream fetch failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
