package auth

// ExternalIdentity is the set of identity facts extracted from a verified
// Cognito token. It contains facts only, no decisions, and is never
// persisted directly.
type ExternalIdentity struct {
	Subject       string // Cognito-scoped unique user identifier (sub)
	Email         string
	EmailVerified bool // whether Cognito asserts email ownership
	Name          string
	GivenName     string
	FamilyName    string
}

// LocalUser is the persisted record an ExternalIdentity binds to.
// Email is the natural key. Fields are write-once at creation; repeat
// logins never mutate an existing record.
type LocalUser struct {
	ID            string
	Email         string
	CognitoSub    string
	EmailVerified bool
}
