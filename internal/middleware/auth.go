package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth/binder"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/session"
)

// unexported, collision-proof context key
type userContextKeyType struct{}

var userKey = userContextKeyType{}

// UserFromContext extracts the authenticated local user from context.
func UserFromContext(ctx context.Context) (auth.LocalUser, bool) {
	u, ok := ctx.Value(userKey).(auth.LocalUser)
	return u, ok
}

// TokenVerifier is the slice of the verifier this middleware needs.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.ExternalIdentity, error)
}

// UserInfoFetcher resolves an identity from an access token through the
// provider's userInfo endpoint. The provider validates the token itself.
type UserInfoFetcher interface {
	UserInfo(ctx context.Context, accessToken string) (auth.ExternalIdentity, error)
}

// AuthMiddleware authenticates each protected request: it verifies the
// presented ID token and binds the resulting identity to a local user.
// When no ID token is presented but an access token cookie is, the
// identity is fetched from the userInfo endpoint instead.
type AuthMiddleware struct {
	Verifier TokenVerifier
	Binder   binder.Binder
	UserInfo UserInfoFetcher // optional access-token fallback
}

func NewAuthMiddleware(v TokenVerifier, b binder.Binder, info UserInfoFetcher) *AuthMiddleware {
	return &AuthMiddleware{Verifier: v, Binder: b, UserInfo: info}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Bearer header takes precedence over the ID token cookie
		token := bearerToken(r)
		if token == "" {
			token = cookieToken(r, session.IDTokenCookie)
		}

		// 2. Establish the identity: verify the ID token locally, or ask
		// the provider when only an access token is at hand.
		var (
			identity auth.ExternalIdentity
			err      error
		)
		switch {
		case token != "":
			identity, err = a.Verifier.Verify(r.Context(), token)
		case a.UserInfo != nil:
			access := cookieToken(r, session.AccessTokenCookie)
			if access == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			identity, err = a.UserInfo.UserInfo(r.Context(), access)
		default:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil || identity.Email == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// 3. Bind to the local user (auto-provisions on first sight)
		user, err := a.Binder.Resolve(r.Context(), identity)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// 4. Attach user to context and continue
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func cookieToken(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
