package hosted

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/config"
)

type stubVerifier struct {
	identity auth.ExternalIdentity
	err      error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (auth.ExternalIdentity, error) {
	return s.identity, s.err
}

type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]bool
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: map[string]bool{}}
}

func (m *memoryStateStore) Put(_ context.Context, state string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state] = true
	return nil
}

func (m *memoryStateStore) Consume(_ context.Context, state string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.states[state] {
		return false, nil
	}
	delete(m.states, state)
	return true, nil
}

// newTokenServer returns a fake token endpoint and a counter of exchange
// attempts.
func newTokenServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestCoordinator(tokenURL string, v TokenVerifier, states StateStore) *Coordinator {
	return &Coordinator{
		clientID:     "client123",
		authorizeURL: "https://auth.example.com/oauth2/authorize",
		tokenURL:     tokenURL,
		userInfoURL:  "https://auth.example.com/oauth2/userInfo",
		logoutURL:    "https://auth.example.com/logout",
		verifier:     v,
		states:       states,
	}
}

func TestStartAuthorization(t *testing.T) {
	c := newTestCoordinator("https://auth.example.com/oauth2/token", stubVerifier{}, nil)

	redirectURL, state, err := c.StartAuthorization(context.Background(), "https://app.example/callback")
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(state), "state must be a uuid")

	u, err := url.Parse(redirectURL)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client123", q.Get("client_id"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "https://app.example/callback", q.Get("redirect_uri"))
	assert.Equal(t, state, q.Get("state"))
}

func TestStartAuthorizationStatesAreSingleUse(t *testing.T) {
	c := newTestCoordinator("https://auth.example.com/oauth2/token", stubVerifier{}, nil)

	_, first, err := c.StartAuthorization(context.Background(), "https://app.example/callback")
	require.NoError(t, err)
	_, second, err := c.StartAuthorization(context.Background(), "https://app.example/callback")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStartAuthorizationMissingConfiguration(t *testing.T) {
	c := New(config.Cognito{}, stubVerifier{}, nil)

	_, _, err := c.StartAuthorization(context.Background(), "https://app.example/callback")
	require.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestCompleteAuthorizationStateMismatch(t *testing.T) {
	srv, calls := newTokenServer(t, http.StatusOK, `{}`)

	cases := []struct {
		name      string
		presented string
		stored    string
	}{
		{"different values", "abc", "def"},
		{"empty presented", "", "def"},
		{"absent stored", "abc", ""},
		{"both absent", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCoordinator(srv.URL, stubVerifier{}, nil)
			_, err := c.CompleteAuthorization(context.Background(), "code", tc.presented, tc.stored, "https://app.example/callback")
			require.ErrorIs(t, err, auth.ErrStateMismatch)
		})
	}

	// No token exchange may be attempted on any mismatch.
	assert.Zero(t, *calls)
}

func TestCompleteAuthorizationSuccess(t *testing.T) {
	srv, calls := newTokenServer(t, http.StatusOK, `{
		"access_token": "access-1",
		"id_token": "id-1",
		"refresh_token": "refresh-1",
		"expires_in": 3600,
		"token_type": "Bearer"
	}`)

	c := newTestCoordinator(srv.URL, stubVerifier{identity: auth.ExternalIdentity{Subject: "sub"}}, nil)

	tokens, err := c.CompleteAuthorization(context.Background(), "code", "state1", "state1", "https://app.example/callback")
	require.NoError(t, err)

	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "id-1", tokens.IDToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.Equal(t, 3600, tokens.ExpiresIn)
	assert.Equal(t, 1, *calls)
}

func TestCompleteAuthorizationExchangeFailure(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)

	c := newTestCoordinator(srv.URL, stubVerifier{}, nil)

	_, err := c.CompleteAuthorization(context.Background(), "bad-code", "s", "s", "https://app.example/callback")

	var exchangeErr *auth.TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, http.StatusBadRequest, exchangeErr.StatusCode)
	assert.Contains(t, exchangeErr.Body, "invalid_grant")
}

func TestCompleteAuthorizationUnverifiableIDToken(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusOK, `{
		"access_token": "access-1",
		"id_token": "forged",
		"token_type": "Bearer"
	}`)

	c := newTestCoordinator(srv.URL, stubVerifier{err: auth.ErrSignatureOrClaim}, nil)

	_, err := c.CompleteAuthorization(context.Background(), "code", "s", "s", "https://app.example/callback")
	require.ErrorIs(t, err, auth.ErrSignatureOrClaim)
}

func TestCompleteAuthorizationMissingIDToken(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusOK, `{
		"access_token": "access-1",
		"token_type": "Bearer"
	}`)

	c := newTestCoordinator(srv.URL, stubVerifier{}, nil)

	_, err := c.CompleteAuthorization(context.Background(), "code", "s", "s", "https://app.example/callback")
	require.ErrorIs(t, err, auth.ErrIncompleteResult)
}

func TestCompleteAuthorizationConsumesServerSideState(t *testing.T) {
	srv, calls := newTokenServer(t, http.StatusOK, `{
		"access_token": "access-1",
		"id_token": "id-1",
		"expires_in": 3600,
		"token_type": "Bearer"
	}`)

	states := newMemoryStateStore()
	c := newTestCoordinator(srv.URL, stubVerifier{}, states)

	_, state, err := c.StartAuthorization(context.Background(), "https://app.example/callback")
	require.NoError(t, err)

	_, err = c.CompleteAuthorization(context.Background(), "code", state, state, "https://app.example/callback")
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)

	// A replayed callback with the same state must fail without another
	// exchange, even though the value still matches the cookie.
	_, err = c.CompleteAuthorization(context.Background(), "code", state, state, "https://app.example/callback")
	require.ErrorIs(t, err, auth.ErrStateMismatch)
	assert.Equal(t, 1, *calls)
}

func TestBuildLogoutURL(t *testing.T) {
	c := newTestCoordinator("https://auth.example.com/oauth2/token", stubVerifier{}, nil)

	u, err := url.Parse(c.BuildLogoutURL("https://app.example"))
	require.NoError(t, err)

	assert.Equal(t, "/logout", u.Path)
	assert.Equal(t, "client123", u.Query().Get("client_id"))
	assert.Equal(t, "https://app.example/admin/login", u.Query().Get("logout_uri"))
}

func newUserInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUserInfo(t *testing.T) {
	srv := newUserInfoServer(t, http.StatusOK, `{
		"sub": "sub-1",
		"email": "user@example.com",
		"email_verified": "true",
		"name": "Jane Doe",
		"given_name": "Jane",
		"family_name": "Doe"
	}`)

	c := newTestCoordinator("https://auth.example.com/oauth2/token", stubVerifier{}, nil)
	c.userInfoURL = srv.URL

	identity, err := c.UserInfo(context.Background(), "access-1")
	require.NoError(t, err)

	assert.Equal(t, "sub-1", identity.Subject)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.True(t, identity.EmailVerified, `the endpoint encodes email_verified as the string "true"`)
	assert.Equal(t, "Jane Doe", identity.Name)
	assert.Equal(t, "Jane", identity.GivenName)
	assert.Equal(t, "Doe", identity.FamilyName)
}

func TestUserInfoUnverifiedEmail(t *testing.T) {
	srv := newUserInfoServer(t, http.StatusOK, `{
		"sub": "sub-1",
		"email": "user@example.com",
		"email_verified": "false"
	}`)

	c := newTestCoordinator("https://auth.example.com/oauth2/token", stubVerifier{}, nil)
	c.userInfoURL = srv.URL

	identity, err := c.UserInfo(context.Background(), "access-1")
	require.NoError(t, err)
	assert.False(t, identity.EmailVerified)
}

func TestUserInfoRejectedToken(t *testing.T) {
	srv := newUserInfoServer(t, http.StatusUnauthorized, `{"error":"invalid_token"}`)

	c := newTestCoordinator("https://auth.example.com/oauth2/token", stubVerifier{}, nil)
	c.userInfoURL = srv.URL

	_, err := c.UserInfo(context.Background(), "access-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestUserInfoMissingConfiguration(t *testing.T) {
	c := New(config.Cognito{}, stubVerifier{}, nil)

	_, err := c.UserInfo(context.Background(), "access-1")
	require.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestBuildLogoutURLWithoutHostedDomain(t *testing.T) {
	c := New(config.Cognito{}, stubVerifier{}, nil)

	assert.Equal(t, "https://app.example/admin/login", c.BuildLogoutURL("https://app.example"))
}
