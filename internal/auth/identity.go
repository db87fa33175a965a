package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity holds the identity-provider-supplied profile fields extracted
// from the ID token.
type Identity struct {
	Subject   string
	Email     string
	Name      string
	Nickname  string
	AvatarURL string
}

// idClaims is the subset of OIDC claims dyschat reads.
type idClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Picture  string `json:"picture"`
}

// Identity parses the stored ID token and returns the profile claims, or
// nil when signed out. The token signature is not verified here: it was
// received directly from the provider's token endpoint over TLS and is
// only used for display.
func (p *Provider) Identity() *Identity {
	p.mu.Lock()
	idToken := ""
	if p.token != nil {
		idToken = p.token.IDToken
	}
	p.mu.Unlock()

	if idToken == "" {
		return nil
	}

	var claims idClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, &claims); err != nil {
		return nil
	}

	return &Identity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Nickname:  claims.Nickname,
		AvatarURL: claims.Picture,
	}
}

// DisplayName picks the best human-readable name from the identity,
// mirroring how the web client labels the signed-in user.
func (id *Identity) DisplayName() string {
	if id == nil {
		return ""
	}
	if id.Name != "" {
		return id.Name
	}
	if id.Nickname != "" {
		return id.Nickname
	}
	if at := strings.IndexByte(id.Email, '@'); at > 0 {
		return id.Email[:at]
	}
	return "User"
}
