package binder

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/itsgitz/payloadcms-auth-with-amazon-cognito/internal/auth"
)

const (
	selectByEmail = `
		SELECT id, email, cognito_sub, email_verified
		FROM users
		WHERE email = $1
	`

	// ON CONFLICT DO NOTHING against the unique email constraint makes
	// concurrent first logins for the same email collapse to one record.
	// RETURNING yields no row for the loser, which then re-reads.
	insertUser = `
		INSERT INTO users (email, cognito_sub, email_verified)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`
)

// DBBinder resolves identities against the Postgres user store.
type DBBinder struct {
	db *sql.DB
}

func NewDBBinder(db *sql.DB) *DBBinder {
	return &DBBinder{db: db}
}

// Resolve finds the user by exact email match, creating it on first sight.
// Existing records are returned unmodified; repeat logins never update
// email, cognito_sub or email_verified.
func (b *DBBinder) Resolve(ctx context.Context, identity auth.ExternalIdentity) (auth.LocalUser, error) {
	if identity.Email == "" {
		return auth.LocalUser{}, errors.New("binder: identity has no email")
	}

	user, err := b.findByEmail(ctx, identity.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return auth.LocalUser{}, err
	}

	var id uuid.UUID
	err = b.db.QueryRowContext(ctx, insertUser,
		identity.Email,
		identity.Subject,
		identity.EmailVerified,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		// Lost the creation race; the winner's record is authoritative.
		return b.findByEmail(ctx, identity.Email)
	}
	if err != nil {
		return auth.LocalUser{}, err
	}

	return auth.LocalUser{
		ID:            id.String(),
		Email:         identity.Email,
		CognitoSub:    identity.Subject,
		EmailVerified: identity.EmailVerified,
	}, nil
}

func (b *DBBinder) findByEmail(ctx context.Context, email string) (auth.LocalUser, error) {
	var (
		id   uuid.UUID
		user auth.LocalUser
	)
	err := b.db.QueryRowContext(ctx, selectByEmail, email).Scan(
		&id,
		&user.Email,
		&user.CognitoSub,
		&user.EmailVerified,
	)
	if err != nil {
		return auth.LocalUser{}, err
	}
	user.ID = id.String()
	return user, nil
}
