package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/username/cardgate/backend/src/logger"
	"github.com/username/cardgate/backend/src/utils"
)

type contextKey string

const merchantIDContextKey = contextKey("merchantID")

// GetMerchantIDFromContext extracts the authenticated merchant identifier
// placed by AuthMiddleware.
func GetMerchantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(merchantIDContextKey).(string)
	return id, ok
}

// AuthMiddleware validates the bearer token on merchant API requests and
// stores the merchant identifier in the request context.
func (h *PaymentHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger.L.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := ""
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			tokenString = authHeader
		}

		if tokenString == "" {
			logger.L.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
			utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
			return
		}

		merchantID, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			logger.L.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), merchantIDContextKey, merchantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
