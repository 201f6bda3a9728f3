package app

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

var ErrInvalidToken = errors.New("invalid identity token")

// identityClaims is the shape the auth service mints. This engine only
// verifies; token issuance lives elsewhere.
type identityClaims struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier resolves a connection's identity from its bearer token.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(token string) (domain.Identity, error) {
	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	identity, err := domain.NewIdentity(
		domain.UserID(claims.Subject),
		domain.DeviceID(claims.DeviceID),
		claims.Name,
		claims.AvatarURL,
	)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// Mint signs an identity token with the same claims Verify expects.
// Exported for tests and the dev token endpoint.
func (v *TokenVerifier) Mint(identity domain.Identity) (string, error) {
	claims := identityClaims{
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
		DeviceID:  string(identity.DeviceID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: string(identity.UserID),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
