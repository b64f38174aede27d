package companion

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthTokenInfo holds the claims of interest inside a Rust+ auth token.
type AuthTokenInfo struct {
	SteamID   string
	ExpiresAt time.Time
}

// InspectAuthToken decodes the unverified claims of a Rust+ auth token.
//
// The token is issued and verified by Facepunch; we have no key material to
// verify the signature and do not need to; the decode is used only to show
// the user which Steam account was paired and when the token expires.
func InspectAuthToken(token string) (*AuthTokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing auth token: %w", err)
	}

	info := &AuthTokenInfo{}
	if steamID, ok := claims["steamId"].(string); ok {
		info.SteamID = steamID
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
