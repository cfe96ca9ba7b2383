package binder

import (
	"context"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
)

// Binder maps a verified external identity onto a local user record. It is
// the ONLY place where identity-to-user mapping logic lives, and the sole
// path by which local users are created.
type Binder interface {
	Resolve(ctx context.Context, identity auth.ExternalIdentity) (auth.LocalUser, error)
}
