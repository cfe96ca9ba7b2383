package session

import (
	"net/http"
	"time"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
)

// Cookie names for the token set and transient flow state.
const (
	AccessTokenCookie  = "cognito_access_token"
	IDTokenCookie      = "cognito_id_token"
	RefreshTokenCookie = "cognito_refresh_token"

	StateCookie               = "cognito_state"
	PasswordlessSessionCookie = "cognito_passwordless_session"
	PasswordlessEmailCookie   = "cognito_passwordless_email"
)

const (
	// Flow state is single-use and short-lived.
	FlowTTL = 10 * time.Minute

	// Refresh tokens outlive the access token by design.
	refreshTTL = 30 * 24 * time.Hour
)

// Manager owns the shape and lifetime of persisted flow/session state. It
// holds no business logic: callers decide what gets stored and when it is
// cleared.
type Manager struct {
	secure bool
}

// NewManager creates a cookie manager. secure should be false only in
// local development.
func NewManager(secure bool) *Manager {
	return &Manager{secure: secure}
}

func (m *Manager) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func (m *Manager) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SetTokens stores the token set. Access and ID tokens live exactly as long
// as the tokens themselves; the refresh token, when present, is kept for 30
// days.
func (m *Manager) SetTokens(w http.ResponseWriter, ts auth.TokenSet) {
	tokenTTL := time.Duration(ts.ExpiresIn) * time.Second
	m.set(w, AccessTokenCookie, ts.AccessToken, tokenTTL)
	m.set(w, IDTokenCookie, ts.IDToken, tokenTTL)
	if ts.RefreshToken != "" {
		m.set(w, RefreshTokenCookie, ts.RefreshToken, refreshTTL)
	}
}

// SetOAuthState stores the CSRF state for the browser-redirect flow.
func (m *Manager) SetOAuthState(w http.ResponseWriter, state string) {
	m.set(w, StateCookie, state, FlowTTL)
}

// OAuthState returns the stored CSRF state, or "" when absent or expired.
func (m *Manager) OAuthState(r *http.Request) string {
	return cookieValue(r, StateCookie)
}

// SetPasswordlessFlow stores the challenge session and email together; both
// must be presented together at completion.
func (m *Manager) SetPasswordlessFlow(w http.ResponseWriter, challengeSession, email string) {
	m.set(w, PasswordlessSessionCookie, challengeSession, FlowTTL)
	m.set(w, PasswordlessEmailCookie, email, FlowTTL)
}

// PasswordlessFlow returns the stored challenge session and email.
func (m *Manager) PasswordlessFlow(r *http.Request) (challengeSession, email string) {
	return cookieValue(r, PasswordlessSessionCookie), cookieValue(r, PasswordlessEmailCookie)
}

// IDToken returns the stored ID token, or "" when absent.
func (m *Manager) IDToken(r *http.Request) string {
	return cookieValue(r, IDTokenCookie)
}

// ClearFlow removes all transient flow state. Called on every flow
// completion, successful or not, so a stale code or session cannot be
// replayed.
func (m *Manager) ClearFlow(w http.ResponseWriter) {
	m.clear(w, StateCookie)
	m.clear(w, PasswordlessSessionCookie)
	m.clear(w, PasswordlessEmailCookie)
}

// ClearAll removes every token and flow-state cookie unconditionally,
// regardless of whether the provider's own end-session step succeeds.
func (m *Manager) ClearAll(w http.ResponseWriter) {
	m.clear(w, AccessTokenCookie)
	m.clear(w, IDTokenCookie)
	m.clear(w, RefreshTokenCookie)
	m.ClearFlow(w)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
