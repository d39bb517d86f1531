package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"matchpass/internal/types"
)

// internalPathPrefix marks routes reserved for internal callers that
// authenticate with X-Service-Key instead of a bearer token.
const internalPathPrefix = "/v1/internal/"

// authPublicPaths lists URL paths that are exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health":          true,
	"/metrics":         true,
	"/webhooks/stripe": true, // verified by Stripe-Signature instead
}

// AuthMiddleware resolves the Actor for every non-public request.
//
//   - /v1/internal/* requires X-Service-Key, checked by s.ServiceKeys.
//   - everything else requires "Authorization: Bearer <token>", resolved by
//     s.Authenticator.
//
// Failures are 401 with auth_token_missing, auth_token_invalid or
// auth_service_key_invalid. A nil Authenticator passes through (tests).
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(r.URL.Path, internalPathPrefix) {
			s.authenticateService(w, r, next)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}
		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

func (s *Server) authenticateService(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if s.ServiceKeys == nil {
		s.writeAuthError(w, r, types.ErrCodeAuthServiceKey, "internal routes are disabled")
		return
	}
	actor, err := s.ServiceKeys.VerifyServiceKey(r.Header.Get("X-Service-Key"))
	if err != nil {
		s.Logger.WarnContext(r.Context(), "service key rejected",
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
		)
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			s.writeAuthError(w, r, appErr.Code, appErr.Message)
			return
		}
		s.writeAuthError(w, r, types.ErrCodeAuthServiceKey, "invalid service key")
		return
	}
	next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
}

// extractBearerToken parses "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError maps a ResolveToken failure onto a 401. Store failures are
// logged and surface as a generic invalid-token response.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Kind() == types.KindUnauthorized {
		s.Logger.WarnContext(r.Context(), "authentication failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(appErr.Code)),
		)
		s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
		return
	}

	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "authentication is temporarily unavailable", err))
}

// writeAuthError writes a 401 Unauthorized JSON response with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			ErrorKind: string(types.KindUnauthorized),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}

// RequireAccount rejects requests whose Actor is not an account. Routes that
// act on "the caller's" ledger use it so a service key cannot reach them.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type != types.ActorTypeAccount || actor.ID == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "account authentication required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireService rejects requests not authenticated with the service key.
func RequireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok || !actor.IsService() {
			Error(w, r, types.NewAppError(types.ErrCodeAuthServiceKey, "service key required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
