// Package handler is the HTTP boundary of the auth engine. It parses
// requests, invokes the flow coordinators and maps typed failures to
// user-visible statuses; no protocol or security logic lives here.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/logger"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/middleware"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/session"
)

// OAuthFlow is the hosted-UI coordinator surface the handler drives.
type OAuthFlow interface {
	StartAuthorization(ctx context.Context, redirectURI string) (redirectURL, state string, err error)
	CompleteAuthorization(ctx context.Context, code, presentedState, storedState, redirectURI string) (auth.TokenSet, error)
	BuildLogoutURL(origin string) string
}

// PasswordlessFlow is the email OTP coordinator surface.
type PasswordlessFlow interface {
	Initiate(ctx context.Context, email string) (auth.Challenge, error)
	Complete(ctx context.Context, email, code, challengeSession string) (auth.TokenSet, error)
}

type Handler struct {
	oauth        OAuthFlow
	passwordless PasswordlessFlow
	cookies      *session.Manager
	redirectURI  string
}

func NewHandler(
	oauth OAuthFlow,
	passwordless PasswordlessFlow,
	cookies *session.Manager,
	redirectURI string,
) *Handler {
	return &Handler{
		oauth:        oauth,
		passwordless: passwordless,
		cookies:      cookies,
		redirectURI:  redirectURI,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/auth/cognito/login", h.login)
	r.GET("/auth/cognito/callback", h.callback)
	r.GET("/auth/cognito/logout", h.logout)
	r.POST("/auth/cognito/passwordless/send-code", h.sendCode)
	r.POST("/auth/cognito/passwordless/verify-code", h.verifyCode)
}

func (h *Handler) login(c *gin.Context) {
	if h.redirectURI == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Cognito redirect URI not configured",
		})
		return
	}

	redirectURL, state, err := h.oauth.StartAuthorization(c.Request.Context(), h.redirectURI)
	if err != nil {
		logger.Error("failed to start cognito login", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to initiate Cognito login",
		})
		return
	}

	h.cookies.SetOAuthState(c.Writer, state)
	c.Redirect(http.StatusFound, redirectURL)
}

func (h *Handler) callback(c *gin.Context) {
	// Provider-reported errors short-circuit back to the login page
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("cognito oauth callback returned error", map[string]any{
			"error": errParam,
			"desc":  c.Query("error_description"),
		})
		h.cookies.ClearFlow(c.Writer)
		c.Redirect(http.StatusFound, "/admin/login?error="+errParam)
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Authorization code not provided",
		})
		return
	}

	tokens, err := h.oauth.CompleteAuthorization(
		c.Request.Context(),
		code,
		c.Query("state"),
		h.cookies.OAuthState(c.Request),
		h.redirectURI,
	)
	if err != nil {
		// A failed completion must not leave replayable flow state behind
		h.cookies.ClearFlow(c.Writer)

		if errors.Is(err, auth.ErrStateMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid state parameter",
			})
			return
		}

		logger.Error("cognito callback failed", map[string]any{
			"error": err.Error(),
		})
		c.Redirect(http.StatusFound, "/admin/login?error=authentication_failed")
		return
	}

	h.cookies.SetTokens(c.Writer, tokens)
	h.cookies.ClearFlow(c.Writer)
	c.Redirect(http.StatusFound, "/admin")
}

func (h *Handler) logout(c *gin.Context) {
	// Cookies are cleared unconditionally, whether or not the provider's
	// end-session step is configured or succeeds.
	h.cookies.ClearAll(c.Writer)
	c.Redirect(http.StatusFound, h.oauth.BuildLogoutURL(requestOrigin(c.Request)))
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

func (h *Handler) sendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	challenge, err := h.passwordless.Initiate(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
		case errors.Is(err, auth.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found. Please sign up first."})
		case errors.Is(err, auth.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "Email OTP is not enabled for this user pool"})
		default:
			logger.Error("failed to send verification code", map[string]any{
				"error": err.Error(),
			})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send verification code"})
		}
		return
	}

	h.cookies.SetPasswordlessFlow(c.Writer, challenge.Session, req.Email)

	resp := gin.H{
		"success": true,
		"message": "Verification code sent to your email",
		"session": challenge.Session,
	}
	if challenge.Delivery != nil {
		resp["codeDeliveryDetails"] = gin.H{
			"destination":    challenge.Delivery.Destination,
			"deliveryMedium": challenge.Delivery.Medium,
			"attributeName":  challenge.Delivery.Attribute,
		}
	}
	c.JSON(http.StatusOK, resp)
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) verifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification code is required"})
		return
	}

	challengeSession, email := h.cookies.PasswordlessFlow(c.Request)
	if challengeSession == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Session expired. Please request a new code.",
		})
		return
	}

	tokens, err := h.passwordless.Complete(c.Request.Context(), email, req.Code, challengeSession)
	if err != nil {
		// The spent session and email must not survive a failed attempt
		h.cookies.ClearFlow(c.Writer)

		switch {
		case errors.Is(err, auth.ErrCodeMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code"})
		case errors.Is(err, auth.ErrCodeExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Verification code expired. Please request a new code."})
		case errors.Is(err, auth.ErrNotAuthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
		default:
			logger.Error("failed to verify code", map[string]any{
				"error": err.Error(),
			})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code. Please try again."})
		}
		return
	}

	h.cookies.SetTokens(c.Writer, tokens)
	h.cookies.ClearFlow(c.Writer)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Authentication successful",
		"redirectUrl": "/admin",
	})
}

// Me returns the authenticated local user. Mounted behind RequireAuth.
func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.UserFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            user.ID,
		"email":         user.Email,
		"cognitoSub":    user.CognitoSub,
		"emailVerified": user.EmailVerified,
	})
}

func requestOrigin(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host
}
