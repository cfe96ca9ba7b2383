// Package verifier validates Cognito-issued JWTs against the user pool's
// published signing keys.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/config"
)

// Resolved keys are reused for ten minutes before the key set is fetched
// again.
const keyCacheInterval = 10 * time.Minute

// Config pins the exact values every verified token must carry.
type Config struct {
	// Issuer must equal the token's iss claim exactly.
	Issuer string

	// Audience must equal the token's aud claim exactly (the app client ID).
	Audience string

	// JWKSURL is the pool's signing key set endpoint.
	JWKSURL string
}

// Verifier checks a token's signature and claims and extracts the external
// identity. The signing-key cache is the only shared long-lived state.
type Verifier struct {
	cfg    Config
	keys   *jwk.Cache
	parser *jwt.Parser

	// JWKS registration happens lazily on first use so that missing
	// configuration surfaces there rather than at process start.
	regMu      sync.Mutex
	registered bool
	regErr     error
}

// New creates a verifier for the given expectations. No network traffic
// happens until the first Verify call.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("verifier: create key cache: %w", err)
	}
	return &Verifier{
		cfg:  cfg,
		keys: cache,
		// Only the RS256 family is acceptable. A token claiming any other
		// algorithm is rejected outright.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}, nil
}

// NewForPool builds a verifier from the pool settings, deriving issuer and
// key set endpoint from region and pool ID.
func NewForPool(ctx context.Context, c config.Cognito) (*Verifier, error) {
	return New(ctx, Config{
		Issuer:   c.Issuer(),
		Audience: c.ClientID,
		JWKSURL:  c.JWKSURL(),
	})
}

// Verify validates the token and returns the identity asserted by its
// claims. No token is accepted if any single check fails.
func (v *Verifier) Verify(ctx context.Context, raw string) (auth.ExternalIdentity, error) {
	if v.cfg.Issuer == "" || v.cfg.Audience == "" || v.cfg.JWKSURL == "" {
		return auth.ExternalIdentity{}, fmt.Errorf("%w: cognito issuer, audience and jwks url are required", auth.ErrConfiguration)
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.signingKey(ctx, t)
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrKeyResolution),
			errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrSignatureOrClaim),
			errors.Is(err, auth.ErrConfiguration):
			return auth.ExternalIdentity{}, err
		case errors.Is(err, jwt.ErrTokenMalformed):
			return auth.ExternalIdentity{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
		default:
			return auth.ExternalIdentity{}, fmt.Errorf("%w: %v", auth.ErrSignatureOrClaim, err)
		}
	}

	if err := v.validateClaims(claims); err != nil {
		return auth.ExternalIdentity{}, err
	}

	return identityFromClaims(claims), nil
}

// signingKey resolves the RSA public key matching the token's kid from the
// cached key set.
func (v *Verifier) signingKey(ctx context.Context, t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("%w: unexpected signing method %v", auth.ErrSignatureOrClaim, t.Header["alg"])
	}

	kid, ok := t.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: token header missing kid", auth.ErrInvalidToken)
	}

	if err := v.ensureRegistered(ctx); err != nil {
		return nil, err
	}

	set, err := v.keys.Lookup(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup key set: %v", auth.ErrKeyResolution, err)
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("%w: key id %q not present in key set", auth.ErrKeyResolution, kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("%w: export key: %v", auth.ErrKeyResolution, err)
	}
	return rawKey, nil
}

func (v *Verifier) ensureRegistered(ctx context.Context) error {
	v.regMu.Lock()
	defer v.regMu.Unlock()

	if v.registered {
		return v.regErr
	}

	regCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := v.keys.Register(regCtx, v.cfg.JWKSURL, jwk.WithConstantInterval(keyCacheInterval)); err != nil {
		v.regErr = fmt.Errorf("%w: register key set: %v", auth.ErrKeyResolution, err)
	}
	v.registered = true
	return v.regErr
}

// validateClaims enforces exact issuer and audience equality. Signature and
// expiry are already handled by the parser.
func (v *Verifier) validateClaims(claims jwt.MapClaims) error {
	iss, err := claims.GetIssuer()
	if err != nil || iss != v.cfg.Issuer {
		return fmt.Errorf("%w: issuer %q does not match expected issuer", auth.ErrSignatureOrClaim, iss)
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return fmt.Errorf("%w: audience claim unreadable", auth.ErrSignatureOrClaim)
	}
	for _, a := range aud {
		if a == v.cfg.Audience {
			return nil
		}
	}
	return fmt.Errorf("%w: audience does not include client id", auth.ErrSignatureOrClaim)
}

func identityFromClaims(claims jwt.MapClaims) auth.ExternalIdentity {
	return auth.ExternalIdentity{
		Subject:       stringClaim(claims, "sub"),
		Email:         stringClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          stringClaim(claims, "name"),
		GivenName:     stringClaim(claims, "given_name"),
		FamilyName:    stringClaim(claims, "family_name"),
	}
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// boolClaim tolerates both boolean and "true"/"false" string encodings;
// Cognito uses the former in ID tokens and the latter on the userInfo
// endpoint.
func boolClaim(claims jwt.MapClaims, name string) bool {
	switch v := claims[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
