// Package hosted drives the browser-redirect OAuth flow against the
// Cognito hosted UI: authorization redirect, CSRF state, code exchange.
package hosted

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/config"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/logger"
)

// FlowState is issued at flow start and must be presented unchanged at
// completion. Callers persist it for at most StateTTL.
const StateTTL = 10 * time.Minute

var scopes = []string{"openid", "email", "profile"}

// TokenVerifier validates the ID token returned by the code exchange.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.ExternalIdentity, error)
}

// StateStore makes issued states single-use server-side. Optional; when
// absent the flow falls back to cookie equality alone.
type StateStore interface {
	Put(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

// Coordinator owns the hosted-UI flow. Construct once and share; all
// methods are safe for concurrent use.
type Coordinator struct {
	clientID     string
	authorizeURL string
	tokenURL     string
	userInfoURL  string
	logoutURL    string // empty when no hosted domain is configured

	verifier TokenVerifier
	states   StateStore

	cfgErr error
}

// New builds the coordinator from the pool settings. Missing configuration
// is not fatal here; it surfaces from the first flow operation.
func New(cfg config.Cognito, v TokenVerifier, states StateStore) *Coordinator {
	c := &Coordinator{verifier: v, states: states}
	if err := cfg.ValidateHostedUI(); err != nil {
		c.cfgErr = err
		return c
	}
	c.clientID = cfg.ClientID
	c.authorizeURL = cfg.AuthorizeURL()
	c.tokenURL = cfg.TokenURL()
	c.userInfoURL = cfg.UserInfoURL()
	c.logoutURL = cfg.LogoutURL()
	return c
}

func (c *Coordinator) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.clientID,
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.authorizeURL,
			TokenURL: c.tokenURL,
		},
	}
}

// StartAuthorization returns the provider redirect URL and a fresh
// single-use state. The caller persists the state for StateTTL and presents
// it back at completion.
func (c *Coordinator) StartAuthorization(ctx context.Context, redirectURI string) (redirectURL, state string, err error) {
	if c.cfgErr != nil {
		return "", "", c.cfgErr
	}

	state = uuid.NewString()
	if c.states != nil {
		if err := c.states.Put(ctx, state, StateTTL); err != nil {
			return "", "", fmt.Errorf("hosted: record state: %w", err)
		}
	}

	return c.oauthConfig(redirectURI).AuthCodeURL(state), state, nil
}

// CompleteAuthorization exchanges the authorization code for tokens after
// checking the presented state against the stored one. Any mismatch,
// including an absent stored state, is a hard failure and no exchange is
// attempted. The returned ID token is verified before the set is handed
// back; an unverifiable ID token fails the whole flow.
func (c *Coordinator) CompleteAuthorization(ctx context.Context, code, presentedState, storedState, redirectURI string) (auth.TokenSet, error) {
	if c.cfgErr != nil {
		return auth.TokenSet{}, c.cfgErr
	}

	if presentedState == "" || storedState == "" ||
		subtle.ConstantTimeCompare([]byte(presentedState), []byte(storedState)) != 1 {
		return auth.TokenSet{}, auth.ErrStateMismatch
	}

	if c.states != nil {
		ok, err := c.states.Consume(ctx, presentedState)
		if err != nil {
			return auth.TokenSet{}, fmt.Errorf("hosted: consume state: %w", err)
		}
		if !ok {
			// Already consumed or expired server-side; treat a replayed
			// callback the same as a forged one.
			return auth.TokenSet{}, auth.ErrStateMismatch
		}
	}

	tok, err := c.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return auth.TokenSet{}, &auth.TokenExchangeError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
			}
		}
		return auth.TokenSet{}, fmt.Errorf("hosted: token exchange: %w", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if tok.AccessToken == "" || idToken == "" {
		return auth.TokenSet{}, auth.ErrIncompleteResult
	}

	identity, err := c.verifier.Verify(ctx, idToken)
	if err != nil {
		return auth.TokenSet{}, err
	}

	logger.Info("hosted ui login verified", map[string]any{
		"subject_present": identity.Subject != "",
		"email_present":   identity.Email != "",
		"email_verified":  identity.EmailVerified,
	})

	expiresIn := int(tok.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return auth.TokenSet{
		AccessToken:  tok.AccessToken,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// BuildLogoutURL returns the provider end-session URL when a hosted domain
// and client are configured, otherwise the local post-logout URL. It never
// fails.
func (c *Coordinator) BuildLogoutURL(origin string) string {
	logoutURI := origin + "/admin/login"
	if c.logoutURL == "" || c.clientID == "" {
		return logoutURI
	}
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("logout_uri", logoutURI)
	return c.logoutURL + "?" + q.Encode()
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// UserInfo fetches the identity behind an access token from the hosted-UI
// userInfo endpoint. The endpoint returns claim values as strings.
func (c *Coordinator) UserInfo(ctx context.Context, accessToken string) (auth.ExternalIdentity, error) {
	if c.cfgErr != nil {
		return auth.ExternalIdentity{}, c.cfgErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("hosted: build user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("hosted: get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return auth.ExternalIdentity{}, fmt.Errorf("hosted: get user info: status %d: %s", resp.StatusCode, body)
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return auth.ExternalIdentity{}, fmt.Errorf("hosted: decode user info: %w", err)
	}

	return auth.ExternalIdentity{
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified == "true",
		Name:          info.Name,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
	}, nil
}
