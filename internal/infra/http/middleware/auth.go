package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/pkg/apierror"
	"github.com/flowdeckio/api/pkg/domain/apikey"
	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/jwt"
	"github.com/flowdeckio/api/pkg/logger"
)

// APIKeyHeader carries API keys for programmatic access.
const APIKeyHeader = "X-API-Key"

// GetUserID extracts the user ID from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetEmail extracts the user email from context.
func GetEmail(ctx context.Context) string {
	if email, ok := ctx.Value(EmailKey).(string); ok {
		return email
	}
	return ""
}

// MustUserID parses the authenticated user ID from context. Handlers
// behind Authenticate can rely on it being present.
func MustUserID(ctx context.Context) (shared.ID, error) {
	raw := GetUserID(ctx)
	if raw == "" {
		return shared.ID{}, errors.New("no authenticated user in context")
	}
	return shared.IDFromString(raw)
}

// Auth authenticates requests by session token or API key.
type Auth struct {
	tokens  *jwt.Generator
	apiKeys *app.APIKeyService
	logger  *logger.Logger
}

// NewAuth creates the auth middleware.
func NewAuth(tokens *jwt.Generator, apiKeys *app.APIKeyService, log *logger.Logger) *Auth {
	return &Auth{
		tokens:  tokens,
		apiKeys: apiKeys,
		logger:  log.With("middleware", "auth"),
	}
}

// Authenticate accepts either a Bearer session token or an API key.
// API keys are recognized by their prefix, so a key may also be sent in
// the Authorization header.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := r.Header.Get(APIKeyHeader)
		if credential == "" {
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				credential = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if credential == "" {
			apierror.Unauthorized("authentication required").WriteJSON(w)
			return
		}

		if strings.HasPrefix(credential, apikey.RawKeyPrefix) {
			a.authenticateAPIKey(w, r, next, credential)
			return
		}

		claims, err := a.tokens.ValidateAccessToken(credential)
		if err != nil {
			a.logger.Debug("invalid session token",
				"request_id", GetRequestID(r.Context()),
				"error", err,
			)
			apierror.Unauthorized("invalid or expired token").WriteJSON(w)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, EmailKey, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) authenticateAPIKey(w http.ResponseWriter, r *http.Request, next http.Handler, raw string) {
	key, err := a.apiKeys.Verify(r.Context(), raw)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAPIKey) {
			a.logger.Debug("invalid api key",
				"prefix", apikey.LookupPrefix(raw),
				"request_id", GetRequestID(r.Context()),
			)
			apierror.Unauthorized("invalid api key").WriteJSON(w)
			return
		}
		a.logger.Error("api key verification error", "error", err)
		apierror.InternalError(err).WriteJSON(w)
		return
	}

	ctx := context.WithValue(r.Context(), UserIDKey, key.UserID.String())
	next.ServeHTTP(w, r.WithContext(ctx))
}
