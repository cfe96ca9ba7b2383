package app

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth/binder"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth/handler"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth/hosted"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth/passwordless"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth/verifier"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/config"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/middleware"
	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/session"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	cognitoCfg := cfg.Cognito()

	tokenVerifier, err := verifier.NewForPool(ctx, cognitoCfg)
	if err != nil {
		return nil, nil, err
	}

	var stateStore session.StateStore
	if infra.Redis != nil {
		stateStore = session.NewRedisStateStore(infra.Redis.Client)
	}

	oauthFlow := hosted.New(cognitoCfg, tokenVerifier, stateStore)
	passwordlessFlow := passwordless.New(cognitoCfg)
	identityBinder := binder.NewDBBinder(infra.DB)
	cookies := session.NewManager(!cfg.IsDev())

	authHandler := handler.NewHandler(
		oauthFlow,
		passwordlessFlow,
		cookies,
		cfg.CognitoRedirectURI,
	)

	authMiddleware := middleware.NewAuthMiddleware(tokenVerifier, identityBinder, oauthFlow)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	// ----------------------------
	// Public routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", authHandler.Me)

	return router, func() error {
		var errs []error
		if infra.Redis != nil {
			errs = append(errs, infra.Redis.Close())
		}
		errs = append(errs, infra.DB.Close())
		return errors.Join(errs...)
	}, nil
}
