package auth

// TokenSet holds the credentials issued by Cognito at the end of a login
// flow. Access and refresh tokens are opaque bearer values; only the ID
// token's claims are ever parsed.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string // empty when the flow does not issue one
	ExpiresIn    int    // seconds
}

// CodeDelivery describes where a passwordless verification code was sent.
// All fields are display metadata only.
type CodeDelivery struct {
	Destination string
	Medium      string
	Attribute   string
}

// Challenge is the result of initiating a passwordless login. Session is
// an opaque Cognito value binding the initiation to its verification; it
// must be presented unchanged, together with the email, at completion.
type Challenge struct {
	Session  string
	Delivery *CodeDelivery
}
