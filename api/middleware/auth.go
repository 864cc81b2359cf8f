package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth admits requests carrying a valid access token and records the caller
// on the context for handlers and log lines.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(cfg, r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), logg, claims)))
		})
	}
}

func authenticate(cfg config.JWTConfig, header string) (*pkgAuth.AccessTokenClaims, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		token, scheme = scheme, bearerScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	if !strings.EqualFold(scheme, bearerScheme) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unsupported authorization scheme")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	return claims, nil
}

func withCaller(ctx context.Context, logg *logger.Logger, claims *pkgAuth.AccessTokenClaims) context.Context {
	user := claims.UserID.String()
	ctx = WithRole(WithUserID(ctx, user), claims.Role)
	if logg == nil {
		return ctx
	}
	return logg.WithActorRole(logg.WithUserID(ctx, user), string(claims.Role))
}
