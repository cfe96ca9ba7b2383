package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
)

type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"3000"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`

	AWSRegion          string `env:"AWS_REGION"`
	CognitoUserPoolID  string `env:"AWS_COGNITO_USER_POOL_ID"`
	CognitoClientID    string `env:"AWS_COGNITO_CLIENT_ID"`
	CognitoDomain      string `env:"AWS_COGNITO_DOMAIN"`
	CognitoRedirectURI string `env:"COGNITO_REDIRECT_URI"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DatabaseDSN string `env:"DATABASE_DSN"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the process runs outside production. Cookies are
// only marked Secure in production.
func (c Config) IsDev() bool {
	return c.AppEnv != "production"
}

// Cognito returns the provider settings consumed by the auth components.
// The values are not validated here; each component validates on first use.
func (c Config) Cognito() Cognito {
	return Cognito{
		Region:      c.AWSRegion,
		UserPoolID:  c.CognitoUserPoolID,
		ClientID:    c.CognitoClientID,
		Domain:      c.CognitoDomain,
		RedirectURI: c.CognitoRedirectURI,
	}
}

// Cognito holds the provider-side settings: region and user pool identify
// the token issuer, client ID the relying application, domain the hosted UI.
type Cognito struct {
	Region      string
	UserPoolID  string
	ClientID    string
	Domain      string
	RedirectURI string
}

// Validate checks the settings every flow needs. Missing values surface as
// auth.ErrConfiguration naming the absent variables.
func (c Cognito) Validate() error {
	var missing []string
	if c.Region == "" {
		missing = append(missing, "AWS_REGION")
	}
	if c.UserPoolID == "" {
		missing = append(missing, "AWS_COGNITO_USER_POOL_ID")
	}
	if c.ClientID == "" {
		missing = append(missing, "AWS_COGNITO_CLIENT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", auth.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateHostedUI additionally requires the hosted-UI domain and the OAuth
// redirect URI, which only the browser-redirect flow uses.
func (c Cognito) ValidateHostedUI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var missing []string
	if c.Domain == "" {
		missing = append(missing, "AWS_COGNITO_DOMAIN")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "COGNITO_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", auth.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Issuer is the exact value the ID token's iss claim must carry.
func (c Cognito) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// JWKSURL is the pool's published signing key set endpoint.
func (c Cognito) JWKSURL() string {
	return c.Issuer() + "/.well-known/jwks.json"
}

// Hosted-UI endpoints.

func (c Cognito) AuthorizeURL() string {
	return fmt.Sprintf("https://%s/oauth2/authorize", c.Domain)
}

func (c Cognito) TokenURL() string {
	return fmt.Sprintf("https://%s/oauth2/token", c.Domain)
}

func (c Cognito) UserInfoURL() string {
	return fmt.Sprintf("https://%s/oauth2/userInfo", c.Domain)
}

func (c Cognito) LogoutURL() string {
	return fmt.Sprintf("https://%s/logout", c.Domain)
}
