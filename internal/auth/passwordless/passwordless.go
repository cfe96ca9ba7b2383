// Package passwordless drives the email one-time-code login flow through
// Cognito's InitiateAuth / RespondToAuthChallenge operations.
package passwordless

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/config"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/logger"
)

// emailPattern is a syntactic check only; deliverability is Cognito's
// problem.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// cognitoAPI is the slice of the Cognito IdP client this flow calls.
type cognitoAPI interface {
	InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, params *cip.RespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error)
}

// Coordinator owns the email OTP flow. The AWS client is built lazily on
// first use so that missing configuration surfaces there, not at process
// start.
type Coordinator struct {
	cfg config.Cognito

	mu      sync.Mutex
	client  cognitoAPI
	initErr error
}

func New(cfg config.Cognito) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// NewWithClient injects a prebuilt client. Used by tests and by callers
// that manage AWS configuration themselves.
func NewWithClient(cfg config.Cognito, client cognitoAPI) *Coordinator {
	return &Coordinator{cfg: cfg, client: client}
}

func (c *Coordinator) api(ctx context.Context) (cognitoAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.initErr != nil {
		return nil, c.initErr
	}

	if err := c.cfg.Validate(); err != nil {
		c.initErr = err
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.cfg.Region))
	if err != nil {
		c.initErr = fmt.Errorf("passwordless: load aws config: %w", err)
		return nil, c.initErr
	}
	c.client = cip.NewFromConfig(awsCfg)
	return c.client, nil
}

// Initiate asks Cognito to send a one-time code to the given email and
// returns the challenge session the caller must persist, together with the
// email, for ten minutes.
func (c *Coordinator) Initiate(ctx context.Context, email string) (auth.Challenge, error) {
	if !emailPattern.MatchString(email) {
		return auth.Challenge{}, auth.ErrInvalidEmail
	}

	client, err := c.api(ctx)
	if err != nil {
		return auth.Challenge{}, err
	}

	out, err := client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		ClientId: aws.String(c.cfg.ClientID),
		AuthFlow: types.AuthFlowTypeUserAuth,
		AuthParameters: map[string]string{
			"USERNAME": email,
		},
	})
	if err != nil {
		return auth.Challenge{}, mapInitiateError(err)
	}

	if out.Session == nil || *out.Session == "" {
		return auth.Challenge{}, auth.ErrInitiationFailed
	}

	challenge := auth.Challenge{Session: *out.Session}
	if dest := out.ChallengeParameters["CODE_DELIVERY_DESTINATION"]; dest != "" {
		challenge.Delivery = &auth.CodeDelivery{
			Destination: dest,
			Medium:      out.ChallengeParameters["CODE_DELIVERY_DELIVERY_MEDIUM"],
			Attribute:   out.ChallengeParameters["CODE_DELIVERY_ATTRIBUTE_NAME"],
		}
	}

	logger.Info("passwordless challenge initiated", map[string]any{
		"delivery_present": challenge.Delivery != nil,
	})

	return challenge, nil
}

// Complete answers the email OTP challenge with the user's code under the
// same session and returns the issued token set. A missing refresh token is
// tolerated; some flows do not issue one.
func (c *Coordinator) Complete(ctx context.Context, email, code, session string) (auth.TokenSet, error) {
	client, err := c.api(ctx)
	if err != nil {
		return auth.TokenSet{}, err
	}

	out, err := client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ClientId:      aws.String(c.cfg.ClientID),
		ChallengeName: types.ChallengeNameTypeEmailOtp,
		ChallengeResponses: map[string]string{
			"USERNAME":       email,
			"EMAIL_OTP_CODE": code,
		},
		Session: aws.String(session),
	})
	if err != nil {
		return auth.TokenSet{}, mapChallengeError(err)
	}

	result := out.AuthenticationResult
	if result == nil || result.AccessToken == nil || result.IdToken == nil {
		return auth.TokenSet{}, auth.ErrIncompleteResult
	}

	expiresIn := int(result.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return auth.TokenSet{
		AccessToken:  *result.AccessToken,
		IDToken:      *result.IdToken,
		RefreshToken: aws.ToString(result.RefreshToken),
		ExpiresIn:    expiresIn,
	}, nil
}

func mapInitiateError(err error) error {
	var userNotFound *types.UserNotFoundException
	if errors.As(err, &userNotFound) {
		return fmt.Errorf("%w: %v", auth.ErrUserNotFound, err)
	}
	var notAuthorized *types.NotAuthorizedException
	if errors.As(err, &notAuthorized) {
		return fmt.Errorf("%w: %v", auth.ErrNotAuthorized, err)
	}
	return fmt.Errorf("%w: %v", auth.ErrInitiationFailed, err)
}

func mapChallengeError(err error) error {
	var codeMismatch *types.CodeMismatchException
	if errors.As(err, &codeMismatch) {
		return fmt.Errorf("%w: %v", auth.ErrCodeMismatch, err)
	}
	var expired *types.ExpiredCodeException
	if errors.As(err, &expired) {
		return fmt.Errorf("%w: %v", auth.ErrCodeExpired, err)
	}
	return fmt.Errorf("%w: %v", auth.ErrNotAuthorized, err)
}
