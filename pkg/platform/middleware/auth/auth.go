package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/httputil"
	"fedcred/pkg/requestcontext"
)

// JWTValidator validates bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the subset of token claims the API needs.
type JWTClaims struct {
	UserID string
	Role   string
	JTI    string
}

type parsedClaims struct {
	UserID id.UserID
	Role   id.Role
}

func parseClaims(claims *JWTClaims) (*parsedClaims, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id: %w", err)
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("invalid role: %w", err)
	}
	return &parsedClaims{UserID: userID, Role: role}, nil
}

// RequireAuth validates the bearer token and stores the caller's user id and role in context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token", "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token", "error", err, "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			parsed, err := parseClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims", "error", err, "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, parsed.UserID)
			ctx = requestcontext.WithRole(ctx, parsed.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not in allowed. It must run after RequireAuth.
func RequireRole(logger *slog.Logger, allowed ...id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := requestcontext.Role(ctx)
			if !role.Allows(allowed...) {
				logger.WarnContext(ctx, "forbidden - role not permitted",
					"role", role.String(),
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
