// Package session supplies the ambient authenticated identity to the rest
// of the client core.
//
// The auth collaborator (external — sign-in, refresh, sign-out are not this
// module's job) hands us a bearer access token. Everything the core needs
// from that token is:
//  1. WHO the principal is — the "sub" claim carries the user id
//  2. WHAT to send on requests — the raw token, as an oauth2.TokenSource
//
// WHY PARSE WITHOUT VERIFYING?
// The token is signed with the backend project's secret, which a client
// never holds. Verification happens server-side on every request we make;
// locally we only decode the payload to learn the principal's identity.
// jwt.Parser.ParseUnverified does exactly that — decode, no signature check.
package session

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
)

// Session is the ambient identity consumed by the store, the notification
// engine and the gateways. It doubles as the gateway's credential source.
type Session interface {
	// UserID returns the authenticated principal's id, or "" when anonymous.
	UserID() string
	// Token implements oauth2.TokenSource for the gateway's bearer auth.
	Token() (*oauth2.Token, error)
}

// compile-time checks: *TokenSession satisfies both contracts.
var (
	_ Session            = (*TokenSession)(nil)
	_ oauth2.TokenSource = (*TokenSession)(nil)
)

// metadataClaims is the slice of the access token payload we care about.
// The backend embeds display metadata under "user_metadata".
type metadataClaims struct {
	jwt.RegisteredClaims
	UserMetadata struct {
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

// TokenSession is a Session backed by a single access token.
// Refresh is the auth collaborator's problem: when it rotates the token it
// builds a fresh TokenSession and re-wires it.
type TokenSession struct {
	raw       string
	userID    string
	fullName  string
	avatarURL string
}

// FromAccessToken decodes an access token and builds a TokenSession from it.
// Returns ErrUnauthenticated if the token is empty or undecodable.
func FromAccessToken(raw string) (*TokenSession, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperror.Unauthenticated("no access token configured")
	}

	claims := &metadataClaims{}
	// ParseUnverified never validates the signature — see the package doc.
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, apperror.Unauthenticated("access token is not a decodable JWT")
	}
	if claims.Subject == "" {
		return nil, apperror.Unauthenticated("access token has no subject claim")
	}

	return &TokenSession{
		raw:       raw,
		userID:    claims.Subject,
		fullName:  claims.UserMetadata.FullName,
		avatarURL: claims.UserMetadata.AvatarURL,
	}, nil
}

func (s *TokenSession) UserID() string { return s.userID }

// FullName returns the display name carried in the token metadata.
func (s *TokenSession) FullName() string { return s.fullName }

// AvatarURL returns the avatar carried in the token metadata.
func (s *TokenSession) AvatarURL() string { return s.avatarURL }

// Token returns the bearer credential for gateway requests.
func (s *TokenSession) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: s.raw, TokenType: "Bearer"}, nil
}

// Anonymous is a Session with no principal and no credential. Public reads
// (the explore feed) work with it; engagement mutations reject it.
type Anonymous struct{}

var _ Session = Anonymous{}

func (Anonymous) UserID() string { return "" }

func (Anonymous) Token() (*oauth2.Token, error) {
	return nil, apperror.Unauthenticated("no session")
}
